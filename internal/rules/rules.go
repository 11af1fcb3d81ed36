// Package rules holds the business rule table for the settlement engine.
// The table is built once at process start and passed by reference; nothing
// mutates it at runtime.
package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rules is the fixed business rule table. All temporal policy in the engine
// (due dates, lead times, reminder offsets, escrow release) derives from
// these values.
type Rules struct {
	// PaymentDueDay is the day of month every rent payment falls due on.
	PaymentDueDay int

	// MonthlyLeadMonths and YearlyLeadMonths are how far before an existing
	// lease's expiry payments transition onto the platform, by payout type.
	MonthlyLeadMonths int
	YearlyLeadMonths  int

	// GraceDays is how long after a due date a payment may arrive before the
	// contract is treated as overdue.
	GraceDays int

	// EarlyReminderDays is how many days before the due date the early
	// reminder fires. Zero disables it.
	EarlyReminderDays int

	// DueTodayReminder enables the reminder sent on the due date itself.
	DueTodayReminder bool

	// OverdueReminderOffsets are the exact days-overdue values on which an
	// escalating overdue reminder is dispatched. All other days are skipped.
	OverdueReminderOffsets []int

	// EscrowAutoReleaseMonths is the accumulation count at which an escrow
	// balance releases regardless of contract expiry.
	EscrowAutoReleaseMonths int

	// EscrowReleaseGraceDays is the grace after contract expiry before the
	// escrow balance becomes releasable.
	EscrowReleaseGraceDays int

	// ExpiryWarningDays is the window used by the weekly sweep that flags
	// contracts nearing expiry.
	ExpiryWarningDays int

	// DefaultLeaseExtensionMonths is the lease length assumed for existing
	// tenants when no new end date is supplied.
	DefaultLeaseExtensionMonths int

	// PendingPaymentTTL is how long an initialized payment may stay pending
	// before the expiry sweep flips it to overdue so the tenant can retry.
	PendingPaymentTTL time.Duration

	// AmountTolerance is the maximum difference accepted between a payment
	// and the contract's monthly amount.
	AmountTolerance decimal.Decimal

	// DefaultCurrency is the ISO code applied to contracts and wallets that
	// do not name one.
	DefaultCurrency string
}

// Default returns the production rule table.
func Default() *Rules {
	return &Rules{
		PaymentDueDay:               1,
		MonthlyLeadMonths:           3,
		YearlyLeadMonths:            6,
		GraceDays:                   7,
		EarlyReminderDays:           3,
		DueTodayReminder:            true,
		OverdueReminderOffsets:      []int{1, 3, 7, 14},
		EscrowAutoReleaseMonths:     12,
		EscrowReleaseGraceDays:      7,
		ExpiryWarningDays:           30,
		DefaultLeaseExtensionMonths: 12,
		PendingPaymentTTL:           5 * time.Minute,
		AmountTolerance:             decimal.New(1, -2),
		DefaultCurrency:             "NGN",
	}
}

// LeadMonths returns the transition lead time for a payout type. Unknown
// payout types fall back to the monthly lead.
func (r *Rules) LeadMonths(yearlyPayout bool) int {
	if yearlyPayout {
		return r.YearlyLeadMonths
	}
	return r.MonthlyLeadMonths
}

// IsOverdueReminderDay reports whether an overdue reminder fires at exactly
// daysOverdue days past the due date.
func (r *Rules) IsOverdueReminderDay(daysOverdue int) bool {
	for _, offset := range r.OverdueReminderOffsets {
		if daysOverdue == offset {
			return true
		}
	}
	return false
}
