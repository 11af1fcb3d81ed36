// Package wallet implements the landlord wallet ledger. Every balance change
// goes through Credit or Debit here; nothing else writes balance fields.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

var (
	// ErrInsufficientBalance is returned when a debit would take the
	// available balance negative. The wallet is left unchanged.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for zero or negative mutation amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// DefaultCurrency is assigned to wallets created on first access.
const DefaultCurrency = "NGN"

// Service is the wallet ledger.
type Service struct {
	store storage.WalletStore
	log   *logger.Logger

	// Landlord-keyed locks serialize read-modify-write cycles so two
	// settlements landing together cannot both read the same balance. The map
	// grows with the set of landlords ever credited; entries are never
	// evicted.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs the wallet ledger.
func New(store storage.WalletStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) landlordLock(landlordID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[landlordID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[landlordID] = lock
	}
	return lock
}

// Credit adds funds to a landlord's wallet, creating the wallet on first
// use, and records an immutable transaction row.
func (s *Service) Credit(ctx context.Context, landlordID string, amount decimal.Decimal, meta wallet.Meta) (wallet.Transaction, error) {
	return s.apply(ctx, landlordID, amount, wallet.TransactionCredit, meta)
}

// Debit removes funds from a landlord's wallet. It fails closed with
// ErrInsufficientBalance when the available balance cannot cover the amount.
func (s *Service) Debit(ctx context.Context, landlordID string, amount decimal.Decimal, meta wallet.Meta) (wallet.Transaction, error) {
	return s.apply(ctx, landlordID, amount, wallet.TransactionWithdrawal, meta)
}

func (s *Service) apply(ctx context.Context, landlordID string, amount decimal.Decimal, txType wallet.TransactionType, meta wallet.Meta) (wallet.Transaction, error) {
	if landlordID == "" {
		return wallet.Transaction{}, fmt.Errorf("landlord id is required")
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return wallet.Transaction{}, ErrInvalidAmount
	}
	amount = amount.Round(2)

	lock := s.landlordLock(landlordID)
	lock.Lock()
	defer lock.Unlock()

	bal, err := s.getOrCreate(ctx, landlordID)
	if err != nil {
		return wallet.Transaction{}, fmt.Errorf("load wallet: %w", err)
	}

	before := bal.AvailableBalance
	switch txType {
	case wallet.TransactionCredit, wallet.TransactionRefund:
		bal.AvailableBalance = before.Add(amount)
		bal.TotalEarned = bal.TotalEarned.Add(amount)
	default:
		if before.Cmp(amount) < 0 {
			return wallet.Transaction{}, fmt.Errorf("debit %s from %s: %w",
				amount.StringFixed(2), before.StringFixed(2), ErrInsufficientBalance)
		}
		bal.AvailableBalance = before.Sub(amount)
		bal.TotalWithdrawn = bal.TotalWithdrawn.Add(amount)
	}

	if _, err := s.store.UpdateWalletBalance(ctx, bal, before); err != nil {
		return wallet.Transaction{}, fmt.Errorf("update wallet: %w", err)
	}

	tx := wallet.Transaction{
		LandlordID:    landlordID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  bal.AvailableBalance,
		Reference:     meta.Reference,
		Status:        "completed",
		Description:   meta.Description,
	}
	if meta.Type != "" || meta.ContractID != "" {
		tx.Metadata = map[string]string{}
		if meta.Type != "" {
			tx.Metadata["type"] = meta.Type
		}
		if meta.ContractID != "" {
			tx.Metadata["contract_id"] = meta.ContractID
		}
	}

	created, err := s.store.CreateWalletTransaction(ctx, tx)
	if err != nil {
		return wallet.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	s.log.WithField("landlord_id", landlordID).
		WithField("type", string(txType)).
		WithField("amount", amount.StringFixed(2)).
		WithField("balance_after", bal.AvailableBalance.StringFixed(2)).
		Info("wallet updated")
	return created, nil
}

// GetBalance returns the landlord's wallet, creating a zeroed one on first
// read so callers never observe a missing wallet as an error.
func (s *Service) GetBalance(ctx context.Context, landlordID string) (wallet.Balance, error) {
	lock := s.landlordLock(landlordID)
	lock.Lock()
	defer lock.Unlock()

	return s.getOrCreate(ctx, landlordID)
}

// GetTransactions returns a most-recent-first page of the landlord's
// transaction history.
func (s *Service) GetTransactions(ctx context.Context, landlordID string, limit, offset int) ([]wallet.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListWalletTransactions(ctx, landlordID, limit, offset)
}

func (s *Service) getOrCreate(ctx context.Context, landlordID string) (wallet.Balance, error) {
	bal, err := s.store.GetWallet(ctx, landlordID)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return wallet.Balance{}, err
	}

	created, err := s.store.CreateWallet(ctx, wallet.Balance{
		LandlordID:       landlordID,
		AvailableBalance: decimal.Zero,
		PendingBalance:   decimal.Zero,
		TotalEarned:      decimal.Zero,
		TotalWithdrawn:   decimal.Zero,
		Currency:         DefaultCurrency,
	})
	if errors.Is(err, storage.ErrConflict) {
		// Another writer created it between our read and write.
		return s.store.GetWallet(ctx, landlordID)
	}
	if err != nil {
		return wallet.Balance{}, err
	}
	return created, nil
}
