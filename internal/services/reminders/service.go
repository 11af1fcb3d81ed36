// Package reminders runs the scheduled sweeps that nudge tenants about
// upcoming, due, and overdue rent, and warn landlords about expiring
// contracts. Delivery goes through a pluggable notifier; the sweep itself
// only decides who gets told what today.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/adhcode/howitworksapp/internal/dates"
	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/reminder"
	"github.com/adhcode/howitworksapp/internal/metrics"
	"github.com/adhcode/howitworksapp/internal/rules"
	"github.com/adhcode/howitworksapp/internal/storage"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is the rendered notification handed to the dispatcher.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers one message on one channel. Delivery failures are the
// notifier's to report; the sweep logs and moves on.
type Notifier interface {
	Send(ctx context.Context, channel Channel, recipient string, msg Message) error
}

// Contact holds the delivery endpoints for one person. Empty fields mean
// the channel is unavailable and is skipped.
type Contact struct {
	Email       string
	Phone       string
	DeviceToken string
}

// ContactDirectory resolves people to their delivery endpoints.
type ContactDirectory interface {
	TenantContact(ctx context.Context, tenantID string) (Contact, error)
	LandlordContact(ctx context.Context, landlordID string) (Contact, error)
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned    int `json:"scanned"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// Service is the reminder and overdue scheduler.
type Service struct {
	contracts storage.ContractStore
	dispatch  storage.ReminderStore
	notifier  Notifier
	directory ContactDirectory
	rules     *rules.Rules
	log       *logger.Logger
	now       func() time.Time
}

// New constructs the scheduler.
func New(contracts storage.ContractStore, dispatch storage.ReminderStore, notifier Notifier, directory ContactDirectory, table *rules.Rules, log *logger.Logger) *Service {
	if table == nil {
		table = rules.Default()
	}
	if log == nil {
		log = logger.NewDefault("reminders")
	}
	return &Service{
		contracts: contracts,
		dispatch:  dispatch,
		notifier:  notifier,
		directory: directory,
		rules:     table,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service's notion of now for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ShouldSendOverdueReminder reports whether an overdue reminder fires at the
// given number of days past due. Zero and negative values never fire.
func (s *Service) ShouldSendOverdueReminder(daysOverdue int) bool {
	return s.rules.IsOverdueReminderDay(daysOverdue)
}

// RunDailySweep walks every active contract once and sends whichever
// reminder today calls for: the early nudge ahead of the due date, the
// due-today notice, or an overdue escalation on the configured offset days.
// A failing contract is logged and skipped; the sweep always finishes.
func (s *Service) RunDailySweep(ctx context.Context) (SweepReport, error) {
	today := dates.StartOfDay(s.now())

	active, err := s.contracts.ListActiveContracts(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list active contracts: %w", err)
	}

	report := SweepReport{Scanned: len(active)}
	for _, c := range active {
		sent, err := s.sweepContract(ctx, c, today)
		if err != nil {
			report.Failed++
			metrics.SweepItemFailed("reminder_daily")
			s.log.WithError(err).WithField("contract_id", c.ID).
				Warn("reminder sweep item failed; continuing")
			continue
		}
		report.Dispatched += sent
	}

	s.log.WithField("scanned", report.Scanned).
		WithField("dispatched", report.Dispatched).
		WithField("failed", report.Failed).
		Info("daily reminder sweep finished")
	return report, nil
}

func (s *Service) sweepContract(ctx context.Context, c contract.RentContract, today time.Time) (int, error) {
	due := dates.StartOfDay(c.NextPaymentDue)
	daysUntil := dates.DaysBetween(today, due)

	switch {
	case daysUntil == 0 && s.rules.DueTodayReminder:
		return s.sendOnce(ctx, c, reminder.KindDueToday, due, 0)
	case s.rules.EarlyReminderDays > 0 && daysUntil == s.rules.EarlyReminderDays:
		return s.sendOnce(ctx, c, reminder.KindEarly, due, 0)
	case daysUntil < 0:
		daysOverdue := -daysUntil
		if !s.rules.IsOverdueReminderDay(daysOverdue) {
			return 0, nil
		}
		return s.sendToTenant(ctx, c, reminder.KindOverdue, due, daysOverdue)
	}
	return 0, nil
}

// sendOnce consults the dispatch log so re-running the sweep on the same day
// does not repeat a reminder for the same billing cycle.
func (s *Service) sendOnce(ctx context.Context, c contract.RentContract, kind reminder.Kind, due time.Time, daysOverdue int) (int, error) {
	already, err := s.dispatch.HasReminderDispatch(ctx, c.ID, kind, due)
	if err != nil {
		return 0, fmt.Errorf("check dispatch log: %w", err)
	}
	if already {
		return 0, nil
	}
	return s.sendToTenant(ctx, c, kind, due, daysOverdue)
}

func (s *Service) sendToTenant(ctx context.Context, c contract.RentContract, kind reminder.Kind, due time.Time, daysOverdue int) (int, error) {
	contact, err := s.directory.TenantContact(ctx, c.TenantID)
	if err != nil {
		return 0, fmt.Errorf("resolve tenant contact: %w", err)
	}

	msg := s.render(c, kind, due, daysOverdue)
	sent := s.deliver(ctx, contact, msg, kind == reminder.KindOverdue)
	if sent == 0 {
		return 0, fmt.Errorf("no channel delivered %s reminder for contract %s", kind, c.ID)
	}

	if _, err := s.dispatch.CreateReminderDispatch(ctx, reminder.Dispatch{
		ContractID:  c.ID,
		Kind:        kind,
		DueDate:     due,
		DaysOverdue: daysOverdue,
		SentAt:      s.now().UTC(),
	}); err != nil {
		return sent, fmt.Errorf("record dispatch: %w", err)
	}

	metrics.ReminderDispatched(string(kind))
	s.log.WithField("contract_id", c.ID).
		WithField("kind", string(kind)).
		WithField("days_overdue", daysOverdue).
		Info("reminder dispatched")
	return sent, nil
}

// deliver fans the message out: push and email always, SMS only for
// escalations. Per-channel failures are logged, not fatal.
func (s *Service) deliver(ctx context.Context, contact Contact, msg Message, escalate bool) int {
	sent := 0
	if contact.DeviceToken != "" {
		if err := s.notifier.Send(ctx, ChannelPush, contact.DeviceToken, msg); err != nil {
			s.log.WithError(err).Warn("push delivery failed")
		} else {
			sent++
		}
	}
	if contact.Email != "" {
		if err := s.notifier.Send(ctx, ChannelEmail, contact.Email, msg); err != nil {
			s.log.WithError(err).Warn("email delivery failed")
		} else {
			sent++
		}
	}
	if escalate && contact.Phone != "" {
		if err := s.notifier.Send(ctx, ChannelSMS, contact.Phone, msg); err != nil {
			s.log.WithError(err).Warn("sms delivery failed")
		} else {
			sent++
		}
	}
	return sent
}

func (s *Service) render(c contract.RentContract, kind reminder.Kind, due time.Time, daysOverdue int) Message {
	amount := c.MonthlyAmount.StringFixed(2)
	dueStr := due.Format("January 2, 2006")
	switch kind {
	case reminder.KindEarly:
		return Message{
			Subject: "Rent due soon",
			Body:    fmt.Sprintf("Your rent of %s %s is due on %s.", c.Currency, amount, dueStr),
		}
	case reminder.KindDueToday:
		return Message{
			Subject: "Rent due today",
			Body:    fmt.Sprintf("Your rent of %s %s is due today.", c.Currency, amount),
		}
	case reminder.KindOverdue:
		return Message{
			Subject: "Rent overdue",
			Body: fmt.Sprintf("Your rent of %s %s was due on %s and is now %d day(s) overdue.",
				c.Currency, amount, dueStr, daysOverdue),
		}
	default:
		return Message{
			Subject: "Contract expiring",
			Body:    fmt.Sprintf("The contract expires on %s.", c.ExpiryDate.Format("January 2, 2006")),
		}
	}
}

// SendManualReminder sends an immediate payment reminder for one contract,
// bypassing the dispatch-log gate. Used by landlords poking a late tenant.
func (s *Service) SendManualReminder(ctx context.Context, contractID string) error {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if !c.Active() {
		return fmt.Errorf("contract %s is %s", c.ID, c.Status)
	}

	today := dates.StartOfDay(s.now())
	due := dates.StartOfDay(c.NextPaymentDue)
	kind := reminder.KindDueToday
	daysOverdue := 0
	if d := dates.DaysBetween(due, today); d > 0 {
		kind = reminder.KindOverdue
		daysOverdue = d
	} else if d < 0 {
		kind = reminder.KindEarly
	}

	_, err = s.sendToTenant(ctx, c, kind, due, daysOverdue)
	return err
}

// RunWeeklyExpirySweep warns landlords about contracts expiring within the
// configured window. Each contract is warned once per expiry date.
func (s *Service) RunWeeklyExpirySweep(ctx context.Context) (SweepReport, error) {
	today := dates.StartOfDay(s.now())
	horizon := dates.AddDays(today, s.rules.ExpiryWarningDays)

	active, err := s.contracts.ListActiveContracts(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list active contracts: %w", err)
	}

	report := SweepReport{Scanned: len(active)}
	for _, c := range active {
		expiry := dates.StartOfDay(c.ExpiryDate)
		if expiry.Before(today) || expiry.After(horizon) {
			continue
		}

		already, err := s.dispatch.HasReminderDispatch(ctx, c.ID, reminder.KindExpiring, expiry)
		if err != nil {
			report.Failed++
			metrics.SweepItemFailed("reminder_expiry")
			s.log.WithError(err).WithField("contract_id", c.ID).
				Warn("expiry sweep item failed; continuing")
			continue
		}
		if already {
			continue
		}

		if err := s.warnExpiring(ctx, c, expiry); err != nil {
			report.Failed++
			metrics.SweepItemFailed("reminder_expiry")
			s.log.WithError(err).WithField("contract_id", c.ID).
				Warn("expiry sweep item failed; continuing")
			continue
		}
		report.Dispatched++
	}

	s.log.WithField("scanned", report.Scanned).
		WithField("dispatched", report.Dispatched).
		WithField("failed", report.Failed).
		Info("weekly expiry sweep finished")
	return report, nil
}

func (s *Service) warnExpiring(ctx context.Context, c contract.RentContract, expiry time.Time) error {
	contact, err := s.directory.LandlordContact(ctx, c.LandlordID)
	if err != nil {
		return fmt.Errorf("resolve landlord contact: %w", err)
	}

	msg := s.render(c, reminder.KindExpiring, expiry, 0)
	if sent := s.deliver(ctx, contact, msg, false); sent == 0 {
		return fmt.Errorf("no channel delivered expiry warning for contract %s", c.ID)
	}

	if _, err := s.dispatch.CreateReminderDispatch(ctx, reminder.Dispatch{
		ContractID: c.ID,
		Kind:       reminder.KindExpiring,
		DueDate:    expiry,
		SentAt:     s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}

	metrics.ReminderDispatched(string(reminder.KindExpiring))
	return nil
}
