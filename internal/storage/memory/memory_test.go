package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/reminder"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
)

func TestWalletBalanceCompareAndSwap(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateWallet(ctx, wallet.Balance{
		LandlordID:       "landlord-1",
		AvailableBalance: decimal.NewFromInt(100),
		Currency:         "NGN",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.AvailableBalance = decimal.NewFromInt(150)
	if _, err := store.UpdateWalletBalance(ctx, created, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("update with matching expectation: %v", err)
	}

	// A writer holding the old balance must be rejected.
	created.AvailableBalance = decimal.NewFromInt(200)
	_, err = store.UpdateWalletBalance(ctx, created, decimal.NewFromInt(100))
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := store.GetWallet(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.AvailableBalance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("stale write landed: %s", got.AvailableBalance)
	}
}

func TestCreateWalletDuplicate(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateWallet(ctx, wallet.Balance{LandlordID: "landlord-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateWallet(ctx, wallet.Balance{LandlordID: "landlord-1"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSingleOpenEscrowPerContract(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID: "landlord-1",
		ContractID: "contract-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID: "landlord-1",
		ContractID: "contract-1",
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for second open escrow, got %v", err)
	}

	first.IsReleased = true
	if _, err := store.UpdateEscrow(ctx, first, first.MonthsAccumulated); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID: "landlord-1",
		ContractID: "contract-1",
	}); err != nil {
		t.Fatalf("new bucket after release: %v", err)
	}
}

func TestEscrowUpdateCompareAndSwap(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID:        "landlord-1",
		ContractID:        "contract-1",
		TotalEscrowed:     decimal.NewFromInt(1000),
		MonthsAccumulated: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A writer holding a stale month count must be rejected.
	stale := created
	stale.TotalEscrowed = decimal.NewFromInt(2000)
	stale.MonthsAccumulated = 2
	if _, err := store.UpdateEscrow(ctx, stale, 5); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale month count, got %v", err)
	}

	created.TotalEscrowed = decimal.NewFromInt(2000)
	created.MonthsAccumulated = 2
	if _, err := store.UpdateEscrow(ctx, created, 1); err != nil {
		t.Fatalf("update with matching expectation: %v", err)
	}

	// Once closed, no further writes land.
	closed := created
	closed.IsReleased = true
	if _, err := store.UpdateEscrow(ctx, closed, 2); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened := closed
	reopened.IsReleased = false
	if _, err := store.UpdateEscrow(ctx, reopened, 2); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for closed escrow, got %v", err)
	}
}

func TestPaymentReferenceLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec, err := store.CreatePayment(ctx, payment.Record{
		ContractID:        "contract-1",
		Status:            payment.StatusPending,
		ExternalReference: "ref-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetPaymentByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("wrong record: %s", got.ID)
	}

	if _, err := store.GetPaymentByReference(ctx, "ref-unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.CreatePayment(ctx, payment.Record{
		ContractID:        "contract-2",
		Status:            payment.StatusPending,
		ExternalReference: "ref-1",
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate reference should conflict, got %v", err)
	}
}

func TestReminderDispatchLog(t *testing.T) {
	store := New()
	ctx := context.Background()
	due := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	has, err := store.HasReminderDispatch(ctx, "contract-1", reminder.KindEarly, due)
	if err != nil {
		t.Fatalf("check empty: %v", err)
	}
	if has {
		t.Fatalf("empty log reported a dispatch")
	}

	if _, err := store.CreateReminderDispatch(ctx, reminder.Dispatch{
		ContractID: "contract-1",
		Kind:       reminder.KindEarly,
		DueDate:    due,
		SentAt:     due,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	has, err = store.HasReminderDispatch(ctx, "contract-1", reminder.KindEarly, due)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !has {
		t.Fatalf("dispatch not found")
	}

	// A different kind or cycle is a separate dispatch.
	if has, _ = store.HasReminderDispatch(ctx, "contract-1", reminder.KindDueToday, due); has {
		t.Fatalf("kind should be part of the key")
	}
	nextCycle := due.AddDate(0, 1, 0)
	if has, _ = store.HasReminderDispatch(ctx, "contract-1", reminder.KindEarly, nextCycle); has {
		t.Fatalf("due date should be part of the key")
	}
}

func TestActiveContractUniquePerTenancy(t *testing.T) {
	store := New()
	ctx := context.Background()

	triple := contract.RentContract{
		TenantID:   "tenant-1",
		PropertyID: "property-1",
		UnitID:     "unit-1",
		Status:     contract.StatusActive,
	}
	first, err := store.CreateContract(ctx, triple)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.CreateContract(ctx, triple); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second active contract for the triple should conflict, got %v", err)
	}

	// Another unit is a different tenancy.
	other := triple
	other.UnitID = "unit-2"
	if _, err := store.CreateContract(ctx, other); err != nil {
		t.Fatalf("different unit: %v", err)
	}

	first.Status = contract.StatusTerminated
	if _, err := store.UpdateContract(ctx, first); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := store.CreateContract(ctx, triple); err != nil {
		t.Fatalf("new active contract after termination: %v", err)
	}
}

func TestGetActiveContractIgnoresTerminated(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, err := store.CreateContract(ctx, contract.RentContract{
		TenantID:   "tenant-1",
		PropertyID: "property-1",
		UnitID:     "unit-1",
		Status:     contract.StatusActive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetActiveContract(ctx, "tenant-1", "property-1", "unit-1"); err != nil {
		t.Fatalf("active lookup: %v", err)
	}

	c.Status = contract.StatusTerminated
	if _, err := store.UpdateContract(ctx, c); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := store.GetActiveContract(ctx, "tenant-1", "property-1", "unit-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
