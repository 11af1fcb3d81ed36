// Package contracts implements the contract lifecycle manager: onboarding a
// tenancy onto the platform, computing when its payments begin, and steering
// the contract through its states.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/dates"
	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/rules"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

var (
	// ErrInvalidRange is returned when a lease window is inverted or an
	// existing lease's expiry is not in the future.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrDuplicateContract is returned when the tenancy triple already has
	// an active contract.
	ErrDuplicateContract = errors.New("active contract already exists")
)

// ValidationError reports a failed entity existence or consistency check.
// It is surfaced to the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// EntityKind identifies a platform record the validator can check.
type EntityKind string

const (
	KindTenant   EntityKind = "tenant"
	KindLandlord EntityKind = "landlord"
	KindProperty EntityKind = "property"
	KindUnit     EntityKind = "unit"
)

// EntityValidator confirms platform records exist and are mutually
// consistent. The engine never reads tenant/property tables itself.
type EntityValidator interface {
	// Exists reports whether the entity exists subject to the constraints
	// (e.g. a unit constrained to its property, a property to its owner).
	Exists(ctx context.Context, kind EntityKind, id string, constraints map[string]string) (bool, error)
}

// NewTenantInput describes a brand-new tenancy.
type NewTenantInput struct {
	TenantID      string
	LandlordID    string
	PropertyID    string
	UnitID        string
	MonthlyAmount decimal.Decimal
	// Currency defaults to the rule table's currency when empty.
	Currency   string
	LeaseStart time.Time
	LeaseEnd   time.Time
	PayoutType contract.PayoutType
}

// ExistingTenantInput describes a tenant migrating mid-lease onto the
// platform. Payments begin a lead-time before their current lease expires.
type ExistingTenantInput struct {
	TenantID               string
	LandlordID             string
	PropertyID             string
	UnitID                 string
	MonthlyAmount          decimal.Decimal
	Currency               string
	CurrentLeaseExpiryDate time.Time
	PayoutType             contract.PayoutType
	// NewLeaseEndDate defaults to the current expiry plus the rule table's
	// standard extension when zero.
	NewLeaseEndDate time.Time
}

// UpdateInput is a partial contract update. Nil fields are left untouched;
// due dates are never recomputed here.
type UpdateInput struct {
	MonthlyAmount *decimal.Decimal
	LeaseEndDate  *time.Time
	PayoutType    *contract.PayoutType
}

// Service is the contract lifecycle manager.
type Service struct {
	store     storage.ContractStore
	validator EntityValidator
	rules     *rules.Rules
	log       *logger.Logger
	now       func() time.Time
}

// New constructs the lifecycle manager.
func New(store storage.ContractStore, validator EntityValidator, table *rules.Rules, log *logger.Logger) *Service {
	if table == nil {
		table = rules.Default()
	}
	if log == nil {
		log = logger.NewDefault("contracts")
	}
	return &Service{
		store:     store,
		validator: validator,
		rules:     table,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service's notion of now. Tests use this to pin the
// evaluation date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateForNewTenant onboards a fresh tenancy. The first payment falls due
// on the lease start when it already lands on the due day, otherwise on the
// first of the month after the later of lease start and today.
func (s *Service) CreateForNewTenant(ctx context.Context, in NewTenantInput) (contract.RentContract, error) {
	if err := s.validateTenancy(ctx, in.TenantID, in.LandlordID, in.PropertyID, in.UnitID); err != nil {
		return contract.RentContract{}, err
	}
	if !in.PayoutType.Valid() {
		return contract.RentContract{}, &ValidationError{Reason: fmt.Sprintf("unknown payout type %q", in.PayoutType)}
	}
	if in.MonthlyAmount.Cmp(decimal.Zero) <= 0 {
		return contract.RentContract{}, &ValidationError{Reason: "monthly amount must be positive"}
	}
	if !in.LeaseEnd.After(in.LeaseStart) {
		return contract.RentContract{}, fmt.Errorf("lease end %s not after start %s: %w",
			in.LeaseEnd.Format("2006-01-02"), in.LeaseStart.Format("2006-01-02"), ErrInvalidRange)
	}
	if err := s.rejectDuplicate(ctx, in.TenantID, in.PropertyID, in.UnitID); err != nil {
		return contract.RentContract{}, err
	}

	today := dates.StartOfDay(s.now())
	leaseStart := dates.StartOfDay(in.LeaseStart)

	c := contract.RentContract{
		TenantID:            in.TenantID,
		LandlordID:          in.LandlordID,
		PropertyID:          in.PropertyID,
		UnitID:              in.UnitID,
		MonthlyAmount:       in.MonthlyAmount.Round(2),
		Currency:            s.currencyOrDefault(in.Currency),
		PayoutType:          in.PayoutType,
		Status:              contract.StatusActive,
		TransitionStartDate: leaseStart,
		NextPaymentDue:      s.firstPaymentDue(leaseStart, today),
		ExpiryDate:          dates.StartOfDay(in.LeaseEnd),
		IsExistingTenant:    false,
	}

	created, err := s.store.CreateContract(ctx, c)
	if err != nil {
		return contract.RentContract{}, s.wrapCreateErr(err, c)
	}

	s.log.WithField("contract_id", created.ID).
		WithField("tenant_id", created.TenantID).
		WithField("next_payment_due", created.NextPaymentDue.Format("2006-01-02")).
		Info("contract created for new tenant")
	return created, nil
}

// CreateForExistingTenant onboards a tenant already mid-lease. The platform
// starts collecting a lead-time before their current lease expires: three
// months for monthly payout landlords, six for yearly. A transition date
// already in the past clamps to today.
func (s *Service) CreateForExistingTenant(ctx context.Context, in ExistingTenantInput) (contract.RentContract, error) {
	if err := s.validateTenancy(ctx, in.TenantID, in.LandlordID, in.PropertyID, in.UnitID); err != nil {
		return contract.RentContract{}, err
	}
	if !in.PayoutType.Valid() {
		return contract.RentContract{}, &ValidationError{Reason: fmt.Sprintf("unknown payout type %q", in.PayoutType)}
	}
	if in.MonthlyAmount.Cmp(decimal.Zero) <= 0 {
		return contract.RentContract{}, &ValidationError{Reason: "monthly amount must be positive"}
	}

	today := dates.StartOfDay(s.now())
	currentExpiry := dates.StartOfDay(in.CurrentLeaseExpiryDate)
	if !currentExpiry.After(today) {
		return contract.RentContract{}, fmt.Errorf("current lease expiry %s not in the future: %w",
			currentExpiry.Format("2006-01-02"), ErrInvalidRange)
	}
	if err := s.rejectDuplicate(ctx, in.TenantID, in.PropertyID, in.UnitID); err != nil {
		return contract.RentContract{}, err
	}

	lead := s.rules.LeadMonths(in.PayoutType == contract.PayoutYearly)
	transitionStart := dates.AddMonths(currentExpiry, -lead)
	if transitionStart.Before(today) {
		transitionStart = today
	}

	leaseEnd := dates.StartOfDay(in.NewLeaseEndDate)
	if in.NewLeaseEndDate.IsZero() {
		leaseEnd = dates.AddMonths(currentExpiry, s.rules.DefaultLeaseExtensionMonths)
	}
	if !leaseEnd.After(transitionStart) {
		return contract.RentContract{}, fmt.Errorf("new lease end %s not after transition start %s: %w",
			leaseEnd.Format("2006-01-02"), transitionStart.Format("2006-01-02"), ErrInvalidRange)
	}

	c := contract.RentContract{
		TenantID:            in.TenantID,
		LandlordID:          in.LandlordID,
		PropertyID:          in.PropertyID,
		UnitID:              in.UnitID,
		MonthlyAmount:       in.MonthlyAmount.Round(2),
		Currency:            s.currencyOrDefault(in.Currency),
		PayoutType:          in.PayoutType,
		Status:              contract.StatusActive,
		TransitionStartDate: transitionStart,
		NextPaymentDue:      s.firstPaymentDue(transitionStart, today),
		ExpiryDate:          leaseEnd,
		IsExistingTenant:    true,
		OriginalExpiryDate:  currentExpiry,
	}

	created, err := s.store.CreateContract(ctx, c)
	if err != nil {
		return contract.RentContract{}, s.wrapCreateErr(err, c)
	}

	s.log.WithField("contract_id", created.ID).
		WithField("tenant_id", created.TenantID).
		WithField("transition_start", created.TransitionStartDate.Format("2006-01-02")).
		WithField("next_payment_due", created.NextPaymentDue.Format("2006-01-02")).
		Info("contract created for existing tenant")
	return created, nil
}

// GetByID loads one contract.
func (s *Service) GetByID(ctx context.Context, id string) (contract.RentContract, error) {
	return s.store.GetContract(ctx, id)
}

// Query lists contracts matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f contract.Filter) ([]contract.RentContract, error) {
	return s.store.ListContracts(ctx, f)
}

// Update applies a partial update. Due dates are deliberately left alone; a
// rent change takes effect from the next settlement.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (contract.RentContract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return contract.RentContract{}, err
	}

	if in.MonthlyAmount != nil {
		if in.MonthlyAmount.Cmp(decimal.Zero) <= 0 {
			return contract.RentContract{}, &ValidationError{Reason: "monthly amount must be positive"}
		}
		c.MonthlyAmount = in.MonthlyAmount.Round(2)
	}
	if in.LeaseEndDate != nil {
		end := dates.StartOfDay(*in.LeaseEndDate)
		if !end.After(c.TransitionStartDate) {
			return contract.RentContract{}, fmt.Errorf("lease end %s not after transition start: %w",
				end.Format("2006-01-02"), ErrInvalidRange)
		}
		c.ExpiryDate = end
	}
	if in.PayoutType != nil {
		if !in.PayoutType.Valid() {
			return contract.RentContract{}, &ValidationError{Reason: fmt.Sprintf("unknown payout type %q", *in.PayoutType)}
		}
		c.PayoutType = *in.PayoutType
	}

	return s.store.UpdateContract(ctx, c)
}

// Terminate moves the contract to its terminal state. Payments already
// settled are not adjusted.
func (s *Service) Terminate(ctx context.Context, id string) (contract.RentContract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return contract.RentContract{}, err
	}
	if c.Status == contract.StatusTerminated {
		return c, nil
	}

	c.Status = contract.StatusTerminated
	updated, err := s.store.UpdateContract(ctx, c)
	if err != nil {
		return contract.RentContract{}, err
	}

	s.log.WithField("contract_id", id).Info("contract terminated")
	return updated, nil
}

// AdvanceNextPaymentDue moves the contract's due date forward one calendar
// month. The settlement router calls this once per settled payment.
func (s *Service) AdvanceNextPaymentDue(ctx context.Context, id string) (contract.RentContract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return contract.RentContract{}, err
	}

	c.NextPaymentDue = dates.AddMonths(c.NextPaymentDue, 1)
	return s.store.UpdateContract(ctx, c)
}

// firstPaymentDue returns the seed date itself when it lands on the due day,
// otherwise the first of the month following the later of seed and today.
func (s *Service) firstPaymentDue(seed, today time.Time) time.Time {
	if seed.Day() == s.rules.PaymentDueDay {
		return seed
	}
	return dates.FirstOfNextMonth(dates.Latest(seed, today))
}

func (s *Service) currencyOrDefault(currency string) string {
	if currency != "" {
		return currency
	}
	return s.rules.DefaultCurrency
}

// wrapCreateErr maps the store's uniqueness conflict onto the duplicate
// sentinel. The pre-check in rejectDuplicate is advisory; the store enforces
// the invariant when two creates race.
func (s *Service) wrapCreateErr(err error, c contract.RentContract) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("tenant %s unit %s: %w", c.TenantID, c.UnitID, ErrDuplicateContract)
	}
	return fmt.Errorf("create contract: %w", err)
}

func (s *Service) rejectDuplicate(ctx context.Context, tenantID, propertyID, unitID string) error {
	_, err := s.store.GetActiveContract(ctx, tenantID, propertyID, unitID)
	if err == nil {
		return fmt.Errorf("tenant %s unit %s: %w", tenantID, unitID, ErrDuplicateContract)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check duplicates: %w", err)
	}
	return nil
}

func (s *Service) validateTenancy(ctx context.Context, tenantID, landlordID, propertyID, unitID string) error {
	if tenantID == "" || landlordID == "" || propertyID == "" || unitID == "" {
		return &ValidationError{Reason: "tenant, landlord, property and unit ids are required"}
	}
	if s.validator == nil {
		return nil
	}

	checks := []struct {
		kind        EntityKind
		id          string
		constraints map[string]string
	}{
		{KindTenant, tenantID, map[string]string{"role": "tenant"}},
		{KindLandlord, landlordID, map[string]string{"role": "landlord"}},
		{KindProperty, propertyID, map[string]string{"landlord_id": landlordID}},
		{KindUnit, unitID, map[string]string{"property_id": propertyID}},
	}
	for _, check := range checks {
		ok, err := s.validator.Exists(ctx, check.kind, check.id, check.constraints)
		if err != nil {
			return fmt.Errorf("validate %s %s: %w", check.kind, check.id, err)
		}
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("%s %s not found or inconsistent", check.kind, check.id)}
		}
	}
	return nil
}
