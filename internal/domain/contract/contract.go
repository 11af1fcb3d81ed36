// Package contract defines the rent contract aggregate: one tenant's
// recurring payment obligation for one unit.
package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the contract lifecycle state. Contracts are never hard-deleted;
// the terminal state is StatusTerminated.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

// PayoutType is the landlord's settlement cadence for a contract.
type PayoutType string

const (
	// PayoutMonthly credits the landlord's wallet as each payment settles.
	PayoutMonthly PayoutType = "monthly"
	// PayoutYearly accumulates payments in escrow until release.
	PayoutYearly PayoutType = "yearly"
)

// Valid reports whether p is a known payout type.
func (p PayoutType) Valid() bool {
	return p == PayoutMonthly || p == PayoutYearly
}

// RentContract is the aggregate root for a tenancy.
type RentContract struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	LandlordID string `json:"landlord_id"`
	PropertyID string `json:"property_id"`
	UnitID     string `json:"unit_id"`

	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	Currency      string          `json:"currency"`
	PayoutType    PayoutType      `json:"payout_type"`
	Status        Status          `json:"status"`

	// TransitionStartDate is the date payments begin on the platform. For
	// new tenants it equals the lease start; for existing tenants it is the
	// lead-time offset from their current lease's expiry.
	TransitionStartDate time.Time `json:"transition_start_date"`
	NextPaymentDue      time.Time `json:"next_payment_due"`
	ExpiryDate          time.Time `json:"expiry_date"`

	IsExistingTenant bool `json:"is_existing_tenant"`
	// OriginalExpiryDate records the prior lease's expiry for existing-tenant
	// transitions. Zero otherwise.
	OriginalExpiryDate time.Time `json:"original_expiry_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the contract can accept payments.
func (c *RentContract) Active() bool {
	return c.Status == StatusActive
}

// Filter narrows contract queries. Zero-valued fields match everything.
type Filter struct {
	TenantID   string
	LandlordID string
	PropertyID string
	Status     Status
}
