// Package escrow defines the accumulation bucket held for yearly-payout
// landlords until release conditions are met.
package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance accumulates a yearly-payout contract's payments. At most one
// non-released balance exists per contract; a released balance is closed
// exactly once and never reopened.
type Balance struct {
	ID                  string          `json:"id"`
	LandlordID          string          `json:"landlord_id"`
	ContractID          string          `json:"contract_id"`
	TotalEscrowed       decimal.Decimal `json:"total_escrowed"`
	MonthsAccumulated   int             `json:"months_accumulated"`
	ExpectedReleaseDate time.Time       `json:"expected_release_date"`
	IsReleased          bool            `json:"is_released"`
	ReleasedAt          time.Time       `json:"released_at,omitempty"`
	ReleasedAmount      decimal.Decimal `json:"released_amount"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
