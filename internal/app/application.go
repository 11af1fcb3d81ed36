package app

import (
	"context"
	"fmt"

	"github.com/adhcode/howitworksapp/internal/rules"
	contractsvc "github.com/adhcode/howitworksapp/internal/services/contracts"
	escrowsvc "github.com/adhcode/howitworksapp/internal/services/escrow"
	paymentsvc "github.com/adhcode/howitworksapp/internal/services/payments"
	remindersvc "github.com/adhcode/howitworksapp/internal/services/reminders"
	walletsvc "github.com/adhcode/howitworksapp/internal/services/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/internal/storage/memory"
	"github.com/adhcode/howitworksapp/internal/system"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Contracts storage.ContractStore
	Wallets   storage.WalletStore
	Escrows   storage.EscrowStore
	Payments  storage.PaymentStore
	Reminders storage.ReminderStore
}

// Collaborators are the platform services the engine calls out to. All are
// optional; a nil collaborator disables the feature that needs it.
type Collaborators struct {
	Validator contractsvc.EntityValidator
	Gateway   paymentsvc.Gateway
	Notifier  remindersvc.Notifier
	Directory remindersvc.ContactDirectory
}

// Application ties the settlement services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Rules     *rules.Rules
	Contracts *contractsvc.Service
	Wallet    *walletsvc.Service
	Escrow    *escrowsvc.Service
	Payments  *paymentsvc.Service
	Reminders *remindersvc.Service
}

// New builds a fully initialised application with the provided stores and
// collaborators.
func New(stores Stores, collab Collaborators, table *rules.Rules, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if table == nil {
		table = rules.Default()
	}

	mem := memory.New()
	if stores.Contracts == nil {
		stores.Contracts = mem
	}
	if stores.Wallets == nil {
		stores.Wallets = mem
	}
	if stores.Escrows == nil {
		stores.Escrows = mem
	}
	if stores.Payments == nil {
		stores.Payments = mem
	}
	if stores.Reminders == nil {
		stores.Reminders = mem
	}

	manager := system.NewManager()

	contractService := contractsvc.New(stores.Contracts, collab.Validator, table, log)
	walletService := walletsvc.New(stores.Wallets, log)
	escrowService := escrowsvc.New(stores.Escrows, contractService, walletService, table, log)
	paymentService := paymentsvc.New(contractService, walletService, escrowService,
		stores.Payments, collab.Gateway, table, log)

	var reminderService *remindersvc.Service
	if collab.Notifier != nil && collab.Directory != nil {
		reminderService = remindersvc.New(stores.Contracts, stores.Reminders,
			collab.Notifier, collab.Directory, table, log)
	} else {
		log.Warn("notifier or contact directory not configured; reminders disabled")
	}

	for _, name := range []string{"contracts", "wallet", "payments"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	scheduler := NewScheduler(escrowService, reminderService, paymentService, log)
	if err := manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Rules:     table,
		Contracts: contractService,
		Wallet:    walletService,
		Escrow:    escrowService,
		Payments:  paymentService,
		Reminders: reminderService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
