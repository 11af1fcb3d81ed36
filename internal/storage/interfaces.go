// Package storage defines the persistence interfaces consumed by the
// settlement services, plus the sentinel errors all implementations share.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/reminder"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
)

// ContractStore persists rent contracts.
type ContractStore interface {
	CreateContract(ctx context.Context, c contract.RentContract) (contract.RentContract, error)
	UpdateContract(ctx context.Context, c contract.RentContract) (contract.RentContract, error)
	GetContract(ctx context.Context, id string) (contract.RentContract, error)
	// ListContracts returns contracts matching the filter, newest first.
	ListContracts(ctx context.Context, f contract.Filter) ([]contract.RentContract, error)
	// GetActiveContract finds the active contract for a (tenant, property,
	// unit) triple. ErrNotFound when none exists.
	GetActiveContract(ctx context.Context, tenantID, propertyID, unitID string) (contract.RentContract, error)
	ListActiveContracts(ctx context.Context) ([]contract.RentContract, error)
}

// WalletStore persists wallet balances and their transaction history.
type WalletStore interface {
	GetWallet(ctx context.Context, landlordID string) (wallet.Balance, error)
	CreateWallet(ctx context.Context, b wallet.Balance) (wallet.Balance, error)
	// UpdateWalletBalance applies b only if the stored available balance
	// still equals expectedAvailable, returning ErrConflict otherwise. This
	// is the lost-update guard for concurrent settlements.
	UpdateWalletBalance(ctx context.Context, b wallet.Balance, expectedAvailable decimal.Decimal) (wallet.Balance, error)
	CreateWalletTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error)
	// ListWalletTransactions returns a most-recent-first page.
	ListWalletTransactions(ctx context.Context, landlordID string, limit, offset int) ([]wallet.Transaction, error)
}

// EscrowStore persists escrow balances.
type EscrowStore interface {
	CreateEscrow(ctx context.Context, b escrow.Balance) (escrow.Balance, error)
	// UpdateEscrow applies b only if the stored balance is still open and its
	// accumulated month count equals expectedMonths, returning ErrConflict
	// otherwise. This keeps a concurrent payment and the release sweep from
	// overwriting each other.
	UpdateEscrow(ctx context.Context, b escrow.Balance, expectedMonths int) (escrow.Balance, error)
	GetEscrow(ctx context.Context, id string) (escrow.Balance, error)
	// GetOpenEscrowByContract finds the single non-released balance for a
	// contract. ErrNotFound when none is open.
	GetOpenEscrowByContract(ctx context.Context, contractID string) (escrow.Balance, error)
	ListOpenEscrows(ctx context.Context) ([]escrow.Balance, error)
	ListEscrowsByLandlord(ctx context.Context, landlordID string) ([]escrow.Balance, error)
}

// PaymentStore persists payment records.
type PaymentStore interface {
	CreatePayment(ctx context.Context, rec payment.Record) (payment.Record, error)
	UpdatePayment(ctx context.Context, rec payment.Record) (payment.Record, error)
	GetPayment(ctx context.Context, id string) (payment.Record, error)
	GetPaymentByReference(ctx context.Context, reference string) (payment.Record, error)
	ListPaymentsByContract(ctx context.Context, contractID string) ([]payment.Record, error)
	// ListPendingPaymentsBefore returns pending records created before the
	// cutoff, for the stale-payment expiry sweep.
	ListPendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]payment.Record, error)
}

// ReminderStore persists the reminder dispatch log.
type ReminderStore interface {
	CreateReminderDispatch(ctx context.Context, d reminder.Dispatch) (reminder.Dispatch, error)
	// HasReminderDispatch reports whether a reminder of the given kind was
	// already sent for the contract's due date.
	HasReminderDispatch(ctx context.Context, contractID string, kind reminder.Kind, dueDate time.Time) (bool, error)
}
