//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
)

// Integration test against Postgres to ensure the schema and store agree.
// Run with: TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/storage/postgres
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	_ = godotenv.Load()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("schema.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	for _, table := range []string{
		"reminder_dispatches", "payment_records", "escrow_balances",
		"wallet_transactions", "wallet_balances", "rent_contracts",
	} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func TestIntegrationContractRoundTrip(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	created, err := store.CreateContract(ctx, contract.RentContract{
		TenantID:            "tenant-1",
		LandlordID:          "landlord-1",
		PropertyID:          "property-1",
		UnitID:              "unit-1",
		MonthlyAmount:       decimal.NewFromInt(250000),
		Currency:            "NGN",
		PayoutType:          contract.PayoutMonthly,
		Status:              contract.StatusActive,
		TransitionStartDate: time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		NextPaymentDue:      time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:          time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetContract(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.MonthlyAmount.Equal(decimal.NewFromInt(250000)) || got.Currency != "NGN" {
		t.Fatalf("round trip: %+v", got)
	}
	if !got.NextPaymentDue.Equal(created.NextPaymentDue) {
		t.Fatalf("due date drifted: %s", got.NextPaymentDue)
	}

	// The partial unique index rejects a second active contract for the
	// same tenancy.
	if _, err := store.CreateContract(ctx, contract.RentContract{
		TenantID:            "tenant-1",
		LandlordID:          "landlord-1",
		PropertyID:          "property-1",
		UnitID:              "unit-1",
		MonthlyAmount:       decimal.NewFromInt(1),
		Currency:            "NGN",
		PayoutType:          contract.PayoutMonthly,
		Status:              contract.StatusActive,
		TransitionStartDate: created.TransitionStartDate,
		NextPaymentDue:      created.NextPaymentDue,
		ExpiryDate:          created.ExpiryDate,
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got.Status = contract.StatusTerminated
	if _, err := store.UpdateContract(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.GetActiveContract(ctx, "tenant-1", "property-1", "unit-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("terminated contract still active: %v", err)
	}
}

func TestIntegrationWalletCompareAndSwap(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	created, err := store.CreateWallet(ctx, wallet.Balance{
		LandlordID:       "landlord-1",
		AvailableBalance: decimal.NewFromInt(100),
		PendingBalance:   decimal.Zero,
		TotalEarned:      decimal.NewFromInt(100),
		TotalWithdrawn:   decimal.Zero,
		Currency:         "NGN",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.AvailableBalance = decimal.NewFromInt(150)
	created.TotalEarned = decimal.NewFromInt(150)
	if _, err := store.UpdateWalletBalance(ctx, created, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("update: %v", err)
	}

	created.AvailableBalance = decimal.NewFromInt(500)
	if _, err := store.UpdateWalletBalance(ctx, created, decimal.NewFromInt(100)); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("stale update should conflict, got %v", err)
	}

	got, err := store.GetWallet(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.AvailableBalance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("stale write landed: %s", got.AvailableBalance)
	}
}

func TestIntegrationEscrowSingleOpenPerContract(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	first, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID:          "landlord-1",
		ContractID:          "contract-1",
		TotalEscrowed:       decimal.NewFromInt(1000),
		MonthsAccumulated:   1,
		ExpectedReleaseDate: time.Now().AddDate(1, 0, 0),
		ReleasedAmount:      decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID:          "landlord-1",
		ContractID:          "contract-1",
		TotalEscrowed:       decimal.NewFromInt(2000),
		MonthsAccumulated:   1,
		ExpectedReleaseDate: time.Now().AddDate(1, 0, 0),
		ReleasedAmount:      decimal.Zero,
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second open escrow should conflict, got %v", err)
	}

	first.IsReleased = true
	first.ReleasedAt = time.Now().UTC()
	first.ReleasedAmount = first.TotalEscrowed
	if _, err := store.UpdateEscrow(ctx, first, 1); err != nil {
		t.Fatalf("release: %v", err)
	}

	// A stale writer holding the pre-release view must be rejected.
	stale := first
	stale.IsReleased = false
	if _, err := store.UpdateEscrow(ctx, stale, 1); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for closed escrow, got %v", err)
	}
	if _, err := store.CreateEscrow(ctx, escrow.Balance{
		LandlordID:          "landlord-1",
		ContractID:          "contract-1",
		TotalEscrowed:       decimal.NewFromInt(3000),
		MonthsAccumulated:   1,
		ExpectedReleaseDate: time.Now().AddDate(1, 0, 0),
		ReleasedAmount:      decimal.Zero,
	}); err != nil {
		t.Fatalf("new bucket after release: %v", err)
	}
}

func TestIntegrationPaymentReferenceUnique(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	if _, err := store.CreatePayment(ctx, payment.Record{
		ContractID:        "contract-1",
		TenantID:          "tenant-1",
		LandlordID:        "landlord-1",
		PropertyID:        "property-1",
		UnitID:            "unit-1",
		Amount:            decimal.NewFromInt(1000),
		AmountPaid:        decimal.Zero,
		DueDate:           time.Now().UTC(),
		Status:            payment.StatusPending,
		ExternalReference: "ref-1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.CreatePayment(ctx, payment.Record{
		ContractID:        "contract-2",
		TenantID:          "tenant-2",
		LandlordID:        "landlord-2",
		PropertyID:        "property-2",
		UnitID:            "unit-2",
		Amount:            decimal.NewFromInt(1000),
		AmountPaid:        decimal.Zero,
		DueDate:           time.Now().UTC(),
		Status:            payment.StatusPending,
		ExternalReference: "ref-1",
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate reference should conflict, got %v", err)
	}

	got, err := store.GetPaymentByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ContractID != "contract-1" {
		t.Fatalf("wrong record: %+v", got)
	}
}
