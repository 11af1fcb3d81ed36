// Package payment defines the record of one rent payment attempt and its
// outcome.
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment record state. The transition is one-directional:
// pending becomes paid on gateway confirmation, or overdue when the pending
// window lapses. A paid record is immutable.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Record is one rent payment attempt.
type Record struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	TenantID   string `json:"tenant_id"`
	LandlordID string `json:"landlord_id"`
	PropertyID string `json:"property_id"`
	UnitID     string `json:"unit_id"`

	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	DueDate    time.Time       `json:"due_date"`
	PaidDate   time.Time       `json:"paid_date,omitempty"`

	Status        Status `json:"status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	// ExternalReference is the gateway's transaction reference. Completing
	// the same reference twice must collapse to one settlement.
	ExternalReference string `json:"external_reference"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
