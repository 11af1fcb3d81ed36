// Package escrow implements the escrow manager: accumulating rent payments
// for yearly-payout landlords and releasing them to the wallet ledger once
// the release conditions are met.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/dates"
	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/metrics"
	"github.com/adhcode/howitworksapp/internal/rules"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

// ContractReader supplies the contract expiry the release check needs.
// Satisfied by the contract lifecycle manager.
type ContractReader interface {
	GetByID(ctx context.Context, id string) (contract.RentContract, error)
}

// Ledger is the wallet entry point releases credit into. Satisfied by the
// wallet ledger service; escrow never touches balance rows directly.
type Ledger interface {
	Credit(ctx context.Context, landlordID string, amount decimal.Decimal, meta wallet.Meta) (wallet.Transaction, error)
}

// Service is the escrow manager.
type Service struct {
	store     storage.EscrowStore
	contracts ContractReader
	ledger    Ledger
	rules     *rules.Rules
	log       *logger.Logger
	now       func() time.Time

	// Contract-keyed locks serialize a payment landing against the release
	// sweep closing the same bucket. The map grows with the set of contracts
	// ever escrowed; entries are never evicted.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs the escrow manager.
func New(store storage.EscrowStore, contracts ContractReader, ledger Ledger, table *rules.Rules, log *logger.Logger) *Service {
	if table == nil {
		table = rules.Default()
	}
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{
		store:     store,
		contracts: contracts,
		ledger:    ledger,
		rules:     table,
		log:       log,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) contractLock(contractID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[contractID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contractID] = lock
	}
	return lock
}

// WithClock overrides the service's notion of now for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddToEscrow folds one payment into the contract's open accumulation
// bucket, opening the bucket on the first payment.
func (s *Service) AddToEscrow(ctx context.Context, landlordID string, amount decimal.Decimal, contractID string) (escrow.Balance, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return escrow.Balance{}, fmt.Errorf("escrow amount must be positive")
	}
	amount = amount.Round(2)

	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.store.GetOpenEscrowByContract(ctx, contractID)
	if errors.Is(err, storage.ErrNotFound) {
		created, createErr := s.store.CreateEscrow(ctx, escrow.Balance{
			LandlordID:          landlordID,
			ContractID:          contractID,
			TotalEscrowed:       amount,
			MonthsAccumulated:   1,
			ExpectedReleaseDate: dates.AddMonths(s.now().UTC(), s.rules.EscrowAutoReleaseMonths),
			ReleasedAmount:      decimal.Zero,
		})
		if errors.Is(createErr, storage.ErrConflict) {
			// Lost the race to a concurrent first payment; fall through to
			// the increment path.
			open, err = s.store.GetOpenEscrowByContract(ctx, contractID)
		} else if createErr != nil {
			return escrow.Balance{}, fmt.Errorf("open escrow: %w", createErr)
		} else {
			s.log.WithField("contract_id", contractID).
				WithField("landlord_id", landlordID).
				WithField("amount", amount.StringFixed(2)).
				Info("escrow opened")
			return created, nil
		}
	}
	if err != nil {
		return escrow.Balance{}, fmt.Errorf("load escrow: %w", err)
	}

	expectedMonths := open.MonthsAccumulated
	open.TotalEscrowed = open.TotalEscrowed.Add(amount)
	open.MonthsAccumulated++

	updated, err := s.store.UpdateEscrow(ctx, open, expectedMonths)
	if err != nil {
		return escrow.Balance{}, fmt.Errorf("update escrow: %w", err)
	}

	s.log.WithField("contract_id", contractID).
		WithField("months_accumulated", updated.MonthsAccumulated).
		WithField("total_escrowed", updated.TotalEscrowed.StringFixed(2)).
		Info("escrow accumulated")
	return updated, nil
}

// GetByLandlord lists a landlord's escrow balances, open and released.
func (s *Service) GetByLandlord(ctx context.Context, landlordID string) ([]escrow.Balance, error) {
	return s.store.ListEscrowsByLandlord(ctx, landlordID)
}

// GetOpenByContract returns the contract's open accumulation bucket.
func (s *Service) GetOpenByContract(ctx context.Context, contractID string) (escrow.Balance, error) {
	return s.store.GetOpenEscrowByContract(ctx, contractID)
}

// CheckAndRelease is the daily sweep. Every open balance is released once it
// has accumulated a full cycle of payments, or once its contract has been
// expired past the grace period. A failure on one balance is logged and the
// sweep moves on.
func (s *Service) CheckAndRelease(ctx context.Context) (released int, err error) {
	open, err := s.store.ListOpenEscrows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open escrows: %w", err)
	}

	today := dates.StartOfDay(s.now())
	for _, bal := range open {
		ok, relErr := s.releaseIfEligible(ctx, bal, today)
		if relErr != nil {
			metrics.SweepItemFailed("escrow_release")
			s.log.WithError(relErr).
				WithField("escrow_id", bal.ID).
				WithField("contract_id", bal.ContractID).
				Warn("escrow release failed; continuing sweep")
			continue
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		s.log.WithField("released", released).Info("escrow sweep completed")
	}
	return released, nil
}

func (s *Service) releaseIfEligible(ctx context.Context, bal escrow.Balance, today time.Time) (bool, error) {
	lock := s.contractLock(bal.ContractID)
	lock.Lock()
	defer lock.Unlock()

	// The sweep's listing is a snapshot; reload under the lock so a payment
	// that landed in the meantime is part of what gets released.
	bal, err := s.store.GetEscrow(ctx, bal.ID)
	if err != nil {
		return false, fmt.Errorf("reload escrow: %w", err)
	}
	if bal.IsReleased {
		return false, nil
	}

	eligible := bal.MonthsAccumulated >= s.rules.EscrowAutoReleaseMonths
	if !eligible {
		c, err := s.contracts.GetByID(ctx, bal.ContractID)
		if err != nil {
			return false, fmt.Errorf("load contract: %w", err)
		}
		releaseAfter := dates.AddDays(dates.StartOfDay(c.ExpiryDate), s.rules.EscrowReleaseGraceDays)
		eligible = !releaseAfter.After(today)
	}
	if !eligible {
		return false, nil
	}

	amount := bal.TotalEscrowed
	if _, err := s.ledger.Credit(ctx, bal.LandlordID, amount, wallet.Meta{
		Type:        "escrow_release",
		ContractID:  bal.ContractID,
		Reference:   bal.ID,
		Description: fmt.Sprintf("escrow release after %d months", bal.MonthsAccumulated),
	}); err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}

	expectedMonths := bal.MonthsAccumulated
	bal.IsReleased = true
	bal.ReleasedAt = s.now().UTC()
	bal.ReleasedAmount = amount
	if _, err := s.store.UpdateEscrow(ctx, bal, expectedMonths); err != nil {
		// The credit landed but the close didn't; surface loudly so the
		// operator reconciles before the next sweep re-credits.
		return false, fmt.Errorf("close escrow after credit: %w", err)
	}

	metrics.EscrowReleased()
	s.log.WithField("escrow_id", bal.ID).
		WithField("landlord_id", bal.LandlordID).
		WithField("amount", amount.StringFixed(2)).
		Info("escrow released")
	return true, nil
}
