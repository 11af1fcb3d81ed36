package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the external payment processor boundary. Amounts cross it in
// the gateway's minor unit (kobo); MinorToAmount normalizes them before any
// ledger code sees them.
type Gateway interface {
	// InitializeTransaction asks the gateway for a hosted checkout. The
	// returned reference identifies the transaction from here on.
	InitializeTransaction(ctx context.Context, email string, amountMinor int64, metadata map[string]string) (GatewayInit, error)

	// VerifyTransaction fetches the gateway's authoritative view of a
	// transaction. Completion trusts this, never client input.
	VerifyTransaction(ctx context.Context, reference string) (GatewayVerification, error)
}

// GatewayInit is the gateway's response to an initialization request.
type GatewayInit struct {
	Reference   string
	RedirectURL string
}

// GatewayVerification is the gateway's settled view of a transaction.
type GatewayVerification struct {
	Status      string
	AmountMinor int64
	Channel     string
	Metadata    map[string]string
}

// GatewayStatusSuccess is the verification status accepted for settlement.
const GatewayStatusSuccess = "success"

// MinorToAmount converts a gateway minor-unit amount (kobo) to a decimal
// major-unit amount.
func MinorToAmount(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// AmountToMinor converts a major-unit amount to the gateway's minor unit.
func AmountToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
