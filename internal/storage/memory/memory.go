// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/dates"
	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/reminder"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
)

// Store holds every entity in process memory.
type Store struct {
	mu                 sync.RWMutex
	nextID             int64
	contracts          map[string]contract.RentContract
	wallets            map[string]wallet.Balance
	walletTransactions map[string][]wallet.Transaction
	escrows            map[string]escrow.Balance
	payments           map[string]payment.Record
	paymentsByRef      map[string]string
	reminders          map[string]reminder.Dispatch
}

var _ storage.ContractStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.EscrowStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.ReminderStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:             1,
		contracts:          make(map[string]contract.RentContract),
		wallets:            make(map[string]wallet.Balance),
		walletTransactions: make(map[string][]wallet.Transaction),
		escrows:            make(map[string]escrow.Balance),
		payments:           make(map[string]payment.Record),
		paymentsByRef:      make(map[string]string),
		reminders:          make(map[string]reminder.Dispatch),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ContractStore implementation ------------------------------------------------

func (s *Store) CreateContract(_ context.Context, c contract.RentContract) (contract.RentContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.contracts[c.ID]; exists {
		return contract.RentContract{}, fmt.Errorf("contract %s: %w", c.ID, storage.ErrConflict)
	}
	if c.Status == contract.StatusActive {
		for _, existing := range s.contracts {
			if existing.Status == contract.StatusActive &&
				existing.TenantID == c.TenantID && existing.PropertyID == c.PropertyID && existing.UnitID == c.UnitID {
				return contract.RentContract{}, fmt.Errorf("active contract for tenant %s unit %s: %w",
					c.TenantID, c.UnitID, storage.ErrConflict)
			}
		}
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.contracts[c.ID] = c
	return c, nil
}

func (s *Store) UpdateContract(_ context.Context, c contract.RentContract) (contract.RentContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.contracts[c.ID]
	if !ok {
		return contract.RentContract{}, fmt.Errorf("contract %s: %w", c.ID, storage.ErrNotFound)
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.contracts[c.ID] = c
	return c, nil
}

func (s *Store) GetContract(_ context.Context, id string) (contract.RentContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return contract.RentContract{}, fmt.Errorf("contract %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListContracts(_ context.Context, f contract.Filter) ([]contract.RentContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.RentContract, 0)
	for _, c := range s.contracts {
		if f.TenantID != "" && c.TenantID != f.TenantID {
			continue
		}
		if f.LandlordID != "" && c.LandlordID != f.LandlordID {
			continue
		}
		if f.PropertyID != "" && c.PropertyID != f.PropertyID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) GetActiveContract(_ context.Context, tenantID, propertyID, unitID string) (contract.RentContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.contracts {
		if c.Status == contract.StatusActive &&
			c.TenantID == tenantID && c.PropertyID == propertyID && c.UnitID == unitID {
			return c, nil
		}
	}
	return contract.RentContract{}, fmt.Errorf("active contract for tenant %s: %w", tenantID, storage.ErrNotFound)
}

func (s *Store) ListActiveContracts(_ context.Context) ([]contract.RentContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.RentContract, 0)
	for _, c := range s.contracts {
		if c.Status == contract.StatusActive {
			result = append(result, c)
		}
	}
	return result, nil
}

// WalletStore implementation --------------------------------------------------

func (s *Store) GetWallet(_ context.Context, landlordID string) (wallet.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.wallets[landlordID]
	if !ok {
		return wallet.Balance{}, fmt.Errorf("wallet %s: %w", landlordID, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) CreateWallet(_ context.Context, b wallet.Balance) (wallet.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[b.LandlordID]; exists {
		return wallet.Balance{}, fmt.Errorf("wallet %s: %w", b.LandlordID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.wallets[b.LandlordID] = b
	return b, nil
}

func (s *Store) UpdateWalletBalance(_ context.Context, b wallet.Balance, expectedAvailable decimal.Decimal) (wallet.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.wallets[b.LandlordID]
	if !ok {
		return wallet.Balance{}, fmt.Errorf("wallet %s: %w", b.LandlordID, storage.ErrNotFound)
	}
	if !original.AvailableBalance.Equal(expectedAvailable) {
		return wallet.Balance{}, fmt.Errorf("wallet %s balance moved: %w", b.LandlordID, storage.ErrConflict)
	}

	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	s.wallets[b.LandlordID] = b
	return b, nil
}

func (s *Store) CreateWalletTransaction(_ context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	tx.CreatedAt = time.Now().UTC()
	tx.Metadata = cloneMap(tx.Metadata)

	s.walletTransactions[tx.LandlordID] = append(s.walletTransactions[tx.LandlordID], tx)
	return tx, nil
}

func (s *Store) ListWalletTransactions(_ context.Context, landlordID string, limit, offset int) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.walletTransactions[landlordID]
	// Stored oldest first; the page walks from the tail.
	all := make([]wallet.Transaction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		all = append(all, stored[i])
	}

	if offset >= len(all) {
		return []wallet.Transaction{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// EscrowStore implementation --------------------------------------------------

func (s *Store) CreateEscrow(_ context.Context, b escrow.Balance) (escrow.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = s.nextIDLocked()
	} else if _, exists := s.escrows[b.ID]; exists {
		return escrow.Balance{}, fmt.Errorf("escrow %s: %w", b.ID, storage.ErrConflict)
	}
	for _, existing := range s.escrows {
		if existing.ContractID == b.ContractID && !existing.IsReleased {
			return escrow.Balance{}, fmt.Errorf("open escrow for contract %s: %w", b.ContractID, storage.ErrConflict)
		}
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.escrows[b.ID] = b
	return b, nil
}

func (s *Store) UpdateEscrow(_ context.Context, b escrow.Balance, expectedMonths int) (escrow.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.escrows[b.ID]
	if !ok {
		return escrow.Balance{}, fmt.Errorf("escrow %s: %w", b.ID, storage.ErrNotFound)
	}
	if original.IsReleased || original.MonthsAccumulated != expectedMonths {
		return escrow.Balance{}, fmt.Errorf("escrow %s moved: %w", b.ID, storage.ErrConflict)
	}

	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	s.escrows[b.ID] = b
	return b, nil
}

func (s *Store) GetEscrow(_ context.Context, id string) (escrow.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.escrows[id]
	if !ok {
		return escrow.Balance{}, fmt.Errorf("escrow %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) GetOpenEscrowByContract(_ context.Context, contractID string) (escrow.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.escrows {
		if b.ContractID == contractID && !b.IsReleased {
			return b, nil
		}
	}
	return escrow.Balance{}, fmt.Errorf("open escrow for contract %s: %w", contractID, storage.ErrNotFound)
}

func (s *Store) ListOpenEscrows(_ context.Context) ([]escrow.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]escrow.Balance, 0)
	for _, b := range s.escrows {
		if !b.IsReleased {
			result = append(result, b)
		}
	}
	return result, nil
}

func (s *Store) ListEscrowsByLandlord(_ context.Context, landlordID string) ([]escrow.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]escrow.Balance, 0)
	for _, b := range s.escrows {
		if b.LandlordID == landlordID {
			result = append(result, b)
		}
	}
	return result, nil
}

// PaymentStore implementation -------------------------------------------------

func (s *Store) CreatePayment(_ context.Context, rec payment.Record) (payment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	} else if _, exists := s.payments[rec.ID]; exists {
		return payment.Record{}, fmt.Errorf("payment %s: %w", rec.ID, storage.ErrConflict)
	}

	ref := strings.TrimSpace(rec.ExternalReference)
	if ref != "" {
		if _, exists := s.paymentsByRef[ref]; exists {
			return payment.Record{}, fmt.Errorf("payment reference %s: %w", ref, storage.ErrConflict)
		}
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.payments[rec.ID] = rec
	if ref != "" {
		s.paymentsByRef[ref] = rec.ID
	}
	return rec, nil
}

func (s *Store) UpdatePayment(_ context.Context, rec payment.Record) (payment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.payments[rec.ID]
	if !ok {
		return payment.Record{}, fmt.Errorf("payment %s: %w", rec.ID, storage.ErrNotFound)
	}

	rec.CreatedAt = original.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	s.payments[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.payments[id]
	if !ok {
		return payment.Record{}, fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) GetPaymentByReference(_ context.Context, reference string) (payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentsByRef[strings.TrimSpace(reference)]
	if !ok {
		return payment.Record{}, fmt.Errorf("payment reference %s: %w", reference, storage.ErrNotFound)
	}
	return s.payments[id], nil
}

func (s *Store) ListPaymentsByContract(_ context.Context, contractID string) ([]payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payment.Record, 0)
	for _, rec := range s.payments {
		if rec.ContractID == contractID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListPendingPaymentsBefore(_ context.Context, cutoff time.Time) ([]payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payment.Record, 0)
	for _, rec := range s.payments {
		if rec.Status == payment.StatusPending && rec.CreatedAt.Before(cutoff) {
			result = append(result, rec)
		}
	}
	return result, nil
}

// ReminderStore implementation ------------------------------------------------

func (s *Store) CreateReminderDispatch(_ context.Context, d reminder.Dispatch) (reminder.Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	s.reminders[d.ID] = d
	return d, nil
}

func (s *Store) HasReminderDispatch(_ context.Context, contractID string, kind reminder.Kind, dueDate time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.reminders {
		if d.ContractID == contractID && d.Kind == kind && dates.SameDay(d.DueDate, dueDate) {
			return true, nil
		}
	}
	return false, nil
}

// Helpers --------------------------------------------------------------------

func cloneMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
