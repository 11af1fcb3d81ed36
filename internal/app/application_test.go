package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	contractsvc "github.com/adhcode/howitworksapp/internal/services/contracts"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

// End-to-end over the default in-memory wiring: onboard a contract, settle a
// payment, observe the wallet.
func TestApplicationDefaultWiring(t *testing.T) {
	application, err := New(Stores{}, Collaborators{}, nil, logger.Nop())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	if application.Reminders != nil {
		t.Fatalf("reminders should be disabled without a notifier")
	}

	created, err := application.Contracts.CreateForNewTenant(ctx, contractsvc.NewTenantInput{
		TenantID:      "tenant-1",
		LandlordID:    "landlord-1",
		PropertyID:    "property-1",
		UnitID:        "unit-1",
		MonthlyAmount: decimal.NewFromInt(300000),
		LeaseStart:    time.Now().UTC(),
		LeaseEnd:      time.Now().UTC().AddDate(1, 0, 0),
		PayoutType:    contract.PayoutMonthly,
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	if _, err := application.Payments.ProcessPayment(ctx, created.ID, decimal.NewFromInt(300000), "transfer", "ref-1"); err != nil {
		t.Fatalf("process payment: %v", err)
	}

	bal, err := application.Wallet.GetBalance(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !bal.AvailableBalance.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("wallet: %s", bal.AvailableBalance)
	}
}

func TestApplicationStartIdempotent(t *testing.T) {
	application, err := New(Stores{}, Collaborators{}, nil, logger.Nop())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
