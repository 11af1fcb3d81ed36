// Package wallet defines a landlord's running balance and its immutable
// transaction history.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger mutation.
type TransactionType string

const (
	TransactionCredit     TransactionType = "credit"
	TransactionDebit      TransactionType = "debit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionRefund     TransactionType = "refund"
)

// Balance is one landlord's wallet. AvailableBalance must always equal
// TotalEarned minus TotalWithdrawn and never goes negative.
type Balance struct {
	LandlordID       string          `json:"landlord_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	Currency         string          `json:"currency"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Transaction is an immutable audit row, written once per ledger mutation.
type Transaction struct {
	ID            string            `json:"id"`
	LandlordID    string            `json:"landlord_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Reference     string            `json:"reference,omitempty"`
	Status        string            `json:"status"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Meta carries context for a ledger mutation into the transaction row.
type Meta struct {
	Type        string
	ContractID  string
	Reference   string
	Description string
}
