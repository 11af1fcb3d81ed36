// Package payments implements the settlement router: the single entry point
// for a verified rent payment. It validates the payment against its
// contract, routes the funds to the wallet ledger or into escrow depending
// on the landlord's payout type, records the payment, and advances the
// contract's due date.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/metrics"
	"github.com/adhcode/howitworksapp/internal/rules"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

var (
	// ErrInactiveContract is returned when the contract cannot accept
	// payments (expired or terminated).
	ErrInactiveContract = errors.New("contract is not active")

	// ErrAmountMismatch is returned when the payment differs from the
	// contract's monthly amount beyond the rule table's tolerance.
	ErrAmountMismatch = errors.New("payment amount does not match contract")

	// ErrNotVerified is returned when the gateway does not report the
	// transaction as successful.
	ErrNotVerified = errors.New("transaction not verified by gateway")
)

// ContractManager is the slice of the contract lifecycle manager the router
// needs.
type ContractManager interface {
	GetByID(ctx context.Context, id string) (contract.RentContract, error)
	AdvanceNextPaymentDue(ctx context.Context, id string) (contract.RentContract, error)
}

// Ledger credits monthly-payout landlords immediately.
type Ledger interface {
	Credit(ctx context.Context, landlordID string, amount decimal.Decimal, meta wallet.Meta) (wallet.Transaction, error)
}

// EscrowSink accumulates yearly-payout payments.
type EscrowSink interface {
	AddToEscrow(ctx context.Context, landlordID string, amount decimal.Decimal, contractID string) (escrow.Balance, error)
}

// Result describes a settled payment.
type Result struct {
	PayoutType     contract.PayoutType `json:"payout_type"`
	NextPaymentDue time.Time           `json:"next_payment_due"`
	TransactionID  string              `json:"transaction_id"`
	// Duplicate is set when the reference had already settled and this call
	// changed nothing.
	Duplicate bool `json:"duplicate,omitempty"`
}

// InitResult is the gateway handoff returned to the paying tenant,
// unprocessed.
type InitResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

// Service is the payment settlement router.
type Service struct {
	contracts ContractManager
	ledger    Ledger
	escrow    EscrowSink
	store     storage.PaymentStore
	gateway   Gateway
	rules     *rules.Rules
	log       *logger.Logger
	now       func() time.Time

	// Contract-keyed locks serialize settlement per contract so concurrent
	// completions of the same reference collapse to one credit. The map grows
	// with the set of contracts ever settled; entries are never evicted.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs the settlement router. The gateway may be nil when only
// the direct ProcessPayment path is used.
func New(contracts ContractManager, ledger Ledger, escrowSink EscrowSink, store storage.PaymentStore, gateway Gateway, table *rules.Rules, log *logger.Logger) *Service {
	if table == nil {
		table = rules.Default()
	}
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{
		contracts: contracts,
		ledger:    ledger,
		escrow:    escrowSink,
		store:     store,
		gateway:   gateway,
		rules:     table,
		log:       log,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the service's notion of now for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
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

// ProcessPayment settles one verified rent payment against its contract.
func (s *Service) ProcessPayment(ctx context.Context, contractID string, amount decimal.Decimal, method, reference string) (Result, error) {
	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	// A reference that already settled is a no-op; the first completion won.
	if reference != "" {
		if existing, err := s.store.GetPaymentByReference(ctx, reference); err == nil && existing.Status == payment.StatusPaid {
			c, cerr := s.contracts.GetByID(ctx, contractID)
			if cerr != nil {
				return Result{}, cerr
			}
			return Result{
				PayoutType:     c.PayoutType,
				NextPaymentDue: c.NextPaymentDue,
				TransactionID:  existing.ID,
				Duplicate:      true,
			}, nil
		}
	}

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return Result{}, err
	}
	if !c.Active() {
		metrics.PaymentRejected("inactive_contract")
		return Result{}, fmt.Errorf("contract %s status %s: %w", c.ID, c.Status, ErrInactiveContract)
	}

	amount = amount.Round(2)
	if amount.Sub(c.MonthlyAmount).Abs().Cmp(s.rules.AmountTolerance) > 0 {
		metrics.PaymentRejected("amount_mismatch")
		return Result{}, fmt.Errorf("paid %s, contract expects %s: %w",
			amount.StringFixed(2), c.MonthlyAmount.StringFixed(2), ErrAmountMismatch)
	}

	// The paid record lands before any money moves: it is what the duplicate
	// check at the top keys on, so a retry after a partial failure can never
	// credit twice. A record that stays paid without a matching credit is the
	// reconcilable state, not a doubled payout.
	rec, err := s.recordPaid(ctx, c, amount, method, reference)
	if err != nil {
		return Result{}, err
	}

	switch c.PayoutType {
	case contract.PayoutYearly:
		if _, err := s.escrow.AddToEscrow(ctx, c.LandlordID, amount, c.ID); err != nil {
			s.log.WithError(err).
				WithField("contract_id", c.ID).
				WithField("payment_id", rec.ID).
				Error("payment recorded but escrow not credited; reconcile before retrying")
			return Result{}, fmt.Errorf("escrow payment: %w", err)
		}
	default:
		if _, err := s.ledger.Credit(ctx, c.LandlordID, amount, wallet.Meta{
			Type:       "rent_payment",
			ContractID: c.ID,
			Reference:  reference,
		}); err != nil {
			s.log.WithError(err).
				WithField("contract_id", c.ID).
				WithField("payment_id", rec.ID).
				Error("payment recorded but wallet not credited; reconcile before retrying")
			return Result{}, fmt.Errorf("credit landlord: %w", err)
		}
	}

	updated, err := s.contracts.AdvanceNextPaymentDue(ctx, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("advance due date: %w", err)
	}

	metrics.PaymentSettled(string(c.PayoutType))
	s.log.WithField("contract_id", c.ID).
		WithField("payout_type", string(c.PayoutType)).
		WithField("amount", amount.StringFixed(2)).
		WithField("next_payment_due", updated.NextPaymentDue.Format("2006-01-02")).
		Info("payment settled")

	return Result{
		PayoutType:     c.PayoutType,
		NextPaymentDue: updated.NextPaymentDue,
		TransactionID:  rec.ID,
	}, nil
}

// recordPaid finalizes the pending record for the reference when one exists,
// otherwise writes a fresh paid record.
func (s *Service) recordPaid(ctx context.Context, c contract.RentContract, amount decimal.Decimal, method, reference string) (payment.Record, error) {
	now := s.now().UTC()

	if reference != "" {
		if existing, err := s.store.GetPaymentByReference(ctx, reference); err == nil {
			existing.Status = payment.StatusPaid
			existing.AmountPaid = amount
			existing.PaidDate = now
			if method != "" {
				existing.PaymentMethod = method
			}
			finalized, err := s.store.UpdatePayment(ctx, existing)
			if err != nil {
				return payment.Record{}, fmt.Errorf("finalize payment record: %w", err)
			}
			return finalized, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return payment.Record{}, fmt.Errorf("load payment record: %w", err)
		}
	}

	rec, err := s.store.CreatePayment(ctx, payment.Record{
		ContractID:        c.ID,
		TenantID:          c.TenantID,
		LandlordID:        c.LandlordID,
		PropertyID:        c.PropertyID,
		UnitID:            c.UnitID,
		Amount:            c.MonthlyAmount,
		AmountPaid:        amount,
		DueDate:           c.NextPaymentDue,
		PaidDate:          now,
		Status:            payment.StatusPaid,
		PaymentMethod:     method,
		ExternalReference: reference,
	})
	if err != nil {
		return payment.Record{}, fmt.Errorf("record payment: %w", err)
	}
	return rec, nil
}

// InitializePayment starts the two-phase gateway flow: it asks the gateway
// for a hosted checkout, records a pending payment against the contract's
// current due date, and hands the redirect back untouched. Nothing is
// credited yet.
func (s *Service) InitializePayment(ctx context.Context, contractID, payerEmail string) (InitResult, error) {
	if s.gateway == nil {
		return InitResult{}, fmt.Errorf("payment gateway not configured")
	}

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return InitResult{}, err
	}
	if !c.Active() {
		return InitResult{}, fmt.Errorf("contract %s status %s: %w", c.ID, c.Status, ErrInactiveContract)
	}

	init, err := s.gateway.InitializeTransaction(ctx, payerEmail, AmountToMinor(c.MonthlyAmount), map[string]string{
		"contract_id": c.ID,
		"tenant_id":   c.TenantID,
	})
	if err != nil {
		return InitResult{}, fmt.Errorf("initialize transaction: %w", err)
	}

	if _, err := s.store.CreatePayment(ctx, payment.Record{
		ContractID:        c.ID,
		TenantID:          c.TenantID,
		LandlordID:        c.LandlordID,
		PropertyID:        c.PropertyID,
		UnitID:            c.UnitID,
		Amount:            c.MonthlyAmount,
		AmountPaid:        decimal.Zero,
		DueDate:           c.NextPaymentDue,
		Status:            payment.StatusPending,
		ExternalReference: init.Reference,
	}); err != nil {
		return InitResult{}, fmt.Errorf("record pending payment: %w", err)
	}

	s.log.WithField("contract_id", c.ID).
		WithField("reference", init.Reference).
		Info("payment initialized")
	return InitResult{Reference: init.Reference, RedirectURL: init.RedirectURL}, nil
}

// CompletePayment settles a gateway transaction after the gateway confirms
// it. The contract and amount are re-derived from the gateway's metadata;
// client input is never trusted. Completing an already-settled reference is
// a no-op.
func (s *Service) CompletePayment(ctx context.Context, reference string) (Result, error) {
	if s.gateway == nil {
		return Result{}, fmt.Errorf("payment gateway not configured")
	}

	verification, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return Result{}, fmt.Errorf("verify transaction: %w", err)
	}
	if verification.Status != GatewayStatusSuccess {
		return Result{}, fmt.Errorf("reference %s status %q: %w", reference, verification.Status, ErrNotVerified)
	}

	contractID := verification.Metadata["contract_id"]
	if contractID == "" {
		// Older initializations carried no metadata; fall back to the
		// pending record.
		rec, recErr := s.store.GetPaymentByReference(ctx, reference)
		if recErr != nil {
			return Result{}, fmt.Errorf("resolve contract for reference %s: %w", reference, recErr)
		}
		contractID = rec.ContractID
	}

	method := verification.Channel
	if method == "" {
		method = "card"
	}

	return s.ProcessPayment(ctx, contractID, MinorToAmount(verification.AmountMinor), method, reference)
}

// GetByContract returns the contract's payment history, newest first.
func (s *Service) GetByContract(ctx context.Context, contractID string) ([]payment.Record, error) {
	return s.store.ListPaymentsByContract(ctx, contractID)
}

// ExpireStalePayments is the lazy timeout sweep: pending records older than
// the rule table's TTL flip to overdue so the tenant can retry. Returns the
// number expired.
func (s *Service) ExpireStalePayments(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.rules.PendingPaymentTTL)
	stale, err := s.store.ListPendingPaymentsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	expired := 0
	for _, rec := range stale {
		rec.Status = payment.StatusOverdue
		if _, err := s.store.UpdatePayment(ctx, rec); err != nil {
			metrics.SweepItemFailed("payment_expiry")
			s.log.WithError(err).WithField("payment_id", rec.ID).
				Warn("expire stale payment failed; continuing sweep")
			continue
		}
		expired++
	}

	if expired > 0 {
		s.log.WithField("expired", expired).Info("stale pending payments expired")
	}
	return expired, nil
}
