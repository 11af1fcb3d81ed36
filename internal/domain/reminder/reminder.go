// Package reminder defines the dispatch log that keeps payment reminders
// from repeating within one due cycle.
package reminder

import "time"

// Kind classifies a reminder dispatch.
type Kind string

const (
	KindEarly    Kind = "early"
	KindDueToday Kind = "due_today"
	KindOverdue  Kind = "overdue"
	KindExpiring Kind = "expiring"
)

// Dispatch records that a reminder of a given kind was sent for a contract's
// due date. The daily sweep consults it before sending again.
type Dispatch struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	Kind       Kind      `json:"kind"`
	// DueDate anchors the dispatch to one billing cycle; the same kind may
	// fire again for the next due date.
	DueDate     time.Time `json:"due_date"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}
