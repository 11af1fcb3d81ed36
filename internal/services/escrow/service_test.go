package escrow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	walletsvc "github.com/adhcode/howitworksapp/internal/services/wallet"
	"github.com/adhcode/howitworksapp/internal/storage/memory"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type contractReaderFunc func(ctx context.Context, id string) (contract.RentContract, error)

func (f contractReaderFunc) GetByID(ctx context.Context, id string) (contract.RentContract, error) {
	return f(ctx, id)
}

func staticContract(c contract.RentContract) ContractReader {
	return contractReaderFunc(func(context.Context, string) (contract.RentContract, error) {
		return c, nil
	})
}

func TestAddToEscrowAccumulates(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	svc := New(store, staticContract(contract.RentContract{}), ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.January, 1)))
	ctx := context.Background()

	first, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(200000), "contract-1")
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if first.MonthsAccumulated != 1 {
		t.Fatalf("months: %d", first.MonthsAccumulated)
	}
	if !first.ExpectedReleaseDate.Equal(date(2026, time.January, 1)) {
		t.Fatalf("expected release: %s", first.ExpectedReleaseDate.Format("2006-01-02"))
	}

	second, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(200000), "contract-1")
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if second.MonthsAccumulated != 2 {
		t.Fatalf("months: %d", second.MonthsAccumulated)
	}
	if !second.TotalEscrowed.Equal(decimal.NewFromInt(400000)) {
		t.Fatalf("total: %s", second.TotalEscrowed)
	}

	// Escrowed funds must not appear in the wallet before release.
	bal, err := ledger.GetBalance(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !bal.AvailableBalance.Equal(decimal.Zero) {
		t.Fatalf("wallet should be untouched: %s", bal.AvailableBalance)
	}
}

func TestReleaseAfterFullCycle(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	active := contract.RentContract{
		ID:         "contract-1",
		LandlordID: "landlord-1",
		Status:     contract.StatusActive,
		ExpiryDate: date(2027, time.January, 1),
	}
	svc := New(store, staticContract(active), ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.June, 1)))
	ctx := context.Background()

	monthly := decimal.NewFromInt(150000)
	for i := 0; i < 12; i++ {
		if _, err := svc.AddToEscrow(ctx, "landlord-1", monthly, "contract-1"); err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
	}

	released, err := svc.CheckAndRelease(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("released: %d", released)
	}

	bal, err := ledger.GetBalance(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	want := monthly.Mul(decimal.NewFromInt(12))
	if !bal.AvailableBalance.Equal(want) {
		t.Fatalf("wallet after release: %s, want %s", bal.AvailableBalance, want)
	}

	// The sweep running again must not release twice.
	released, err = svc.CheckAndRelease(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if released != 0 {
		t.Fatalf("double release: %d", released)
	}
	bal, _ = ledger.GetBalance(ctx, "landlord-1")
	if !bal.AvailableBalance.Equal(want) {
		t.Fatalf("wallet changed on second sweep: %s", bal.AvailableBalance)
	}
}

func TestReleaseAfterExpiryGrace(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	expired := contract.RentContract{
		ID:         "contract-1",
		LandlordID: "landlord-1",
		Status:     contract.StatusExpired,
		ExpiryDate: date(2025, time.June, 1),
	}
	svc := New(store, staticContract(expired), ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.January, 1)))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(100000), "contract-1"); err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
	}

	// Day seven after expiry: still inside the grace window.
	svc.WithClock(fixedClock(date(2025, time.June, 7)))
	released, err := svc.CheckAndRelease(ctx)
	if err != nil {
		t.Fatalf("sweep in grace: %v", err)
	}
	if released != 0 {
		t.Fatalf("released inside grace window: %d", released)
	}

	svc.WithClock(fixedClock(date(2025, time.June, 8)))
	released, err = svc.CheckAndRelease(ctx)
	if err != nil {
		t.Fatalf("sweep after grace: %v", err)
	}
	if released != 1 {
		t.Fatalf("released: %d", released)
	}

	bal, err := ledger.GetBalance(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !bal.AvailableBalance.Equal(decimal.NewFromInt(400000)) {
		t.Fatalf("partial accumulation should release in full: %s", bal.AvailableBalance)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	reader := contractReaderFunc(func(_ context.Context, id string) (contract.RentContract, error) {
		if id == "contract-bad" {
			return contract.RentContract{}, context.DeadlineExceeded
		}
		return contract.RentContract{
			ID:         id,
			LandlordID: "landlord-1",
			Status:     contract.StatusExpired,
			ExpiryDate: date(2024, time.January, 1),
		}, nil
	})
	svc := New(store, reader, ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.January, 1)))
	ctx := context.Background()

	if _, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(1000), "contract-bad"); err != nil {
		t.Fatalf("seed bad: %v", err)
	}
	if _, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(2000), "contract-good"); err != nil {
		t.Fatalf("seed good: %v", err)
	}

	released, err := svc.CheckAndRelease(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("good contract should still release: %d", released)
	}
}

func TestPaymentRacingReleaseConservesFunds(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	active := contract.RentContract{
		ID:         "contract-1",
		LandlordID: "landlord-1",
		Status:     contract.StatusActive,
		ExpiryDate: date(2027, time.January, 1),
	}
	svc := New(store, staticContract(active), ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.June, 1)))
	ctx := context.Background()

	monthly := decimal.NewFromInt(1000)
	for i := 0; i < 12; i++ {
		if _, err := svc.AddToEscrow(ctx, "landlord-1", monthly, "contract-1"); err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
	}

	// A thirteenth payment lands while the sweep releases the full bucket.
	// Whichever side wins the lock, every paid amount must end up either in
	// the wallet or in an open bucket.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := svc.CheckAndRelease(ctx); err != nil {
			t.Errorf("sweep: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := svc.AddToEscrow(ctx, "landlord-1", monthly, "contract-1"); err != nil {
			t.Errorf("racing payment: %v", err)
		}
	}()
	wg.Wait()

	bal, err := ledger.GetBalance(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	inWallet := bal.AvailableBalance
	open := decimal.Zero
	all, err := svc.GetByLandlord(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, b := range all {
		if !b.IsReleased {
			open = open.Add(b.TotalEscrowed)
		}
	}

	paid := monthly.Mul(decimal.NewFromInt(13))
	if !inWallet.Add(open).Equal(paid) {
		t.Fatalf("money lost or duplicated: wallet %s + open escrow %s != paid %s",
			inWallet, open, paid)
	}
}

func TestNewBucketAfterRelease(t *testing.T) {
	store := memory.New()
	ledger := walletsvc.New(store, logger.Nop())
	expired := contract.RentContract{
		ID:         "contract-1",
		LandlordID: "landlord-1",
		Status:     contract.StatusExpired,
		ExpiryDate: date(2024, time.December, 1),
	}
	svc := New(store, staticContract(expired), ledger, nil, logger.Nop()).
		WithClock(fixedClock(date(2025, time.January, 1)))
	ctx := context.Background()

	if _, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(5000), "contract-1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.CheckAndRelease(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// A payment after release opens a fresh bucket rather than reopening
	// the closed one.
	fresh, err := svc.AddToEscrow(ctx, "landlord-1", decimal.NewFromInt(7000), "contract-1")
	if err != nil {
		t.Fatalf("payment after release: %v", err)
	}
	if fresh.MonthsAccumulated != 1 || !fresh.TotalEscrowed.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("fresh bucket: months=%d total=%s", fresh.MonthsAccumulated, fresh.TotalEscrowed)
	}

	all, err := svc.GetByLandlord(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected closed and open buckets: %d", len(all))
	}
}
