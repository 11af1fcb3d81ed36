package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	escrowsvc "github.com/adhcode/howitworksapp/internal/services/escrow"
	paymentsvc "github.com/adhcode/howitworksapp/internal/services/payments"
	remindersvc "github.com/adhcode/howitworksapp/internal/services/reminders"
	"github.com/adhcode/howitworksapp/internal/system"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

// Sweep schedules. Reminders and escrow release run once a day, expiry
// warnings weekly, and the stale-payment sweep often enough to keep the
// pending window honest.
const (
	scheduleDailyReminders = "0 8 * * *"
	scheduleDailyEscrow    = "30 8 * * *"
	scheduleWeeklyExpiry   = "0 9 * * MON"
	scheduleStalePayments  = "*/5 * * * *"
	schedulerJobTimeout    = 10 * time.Minute
)

// Scheduler drives the engine's recurring sweeps off a cron table. It is a
// lifecycle-managed service; jobs only run between Start and Stop.
type Scheduler struct {
	escrow    *escrowsvc.Service
	reminders *remindersvc.Service
	payments  *paymentsvc.Service
	log       *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Scheduler)(nil)

// NewScheduler wires the sweeps. A nil reminders service skips the reminder
// jobs; escrow and payments are required.
func NewScheduler(escrow *escrowsvc.Service, reminders *remindersvc.Service, payments *paymentsvc.Service, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		escrow:    escrow,
		reminders: reminders,
		payments:  payments,
		log:       log,
	}
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()

	if _, err := c.AddFunc(scheduleDailyEscrow, s.job("escrow release", func(ctx context.Context) error {
		_, err := s.escrow.CheckAndRelease(ctx)
		return err
	})); err != nil {
		return err
	}
	if _, err := c.AddFunc(scheduleStalePayments, s.job("stale payment expiry", func(ctx context.Context) error {
		_, err := s.payments.ExpireStalePayments(ctx)
		return err
	})); err != nil {
		return err
	}
	if s.reminders != nil {
		if _, err := c.AddFunc(scheduleDailyReminders, s.job("daily reminders", func(ctx context.Context) error {
			_, err := s.reminders.RunDailySweep(ctx)
			return err
		})); err != nil {
			return err
		}
		if _, err := c.AddFunc(scheduleWeeklyExpiry, s.job("weekly expiry warnings", func(ctx context.Context) error {
			_, err := s.reminders.RunWeeklyExpirySweep(ctx)
			return err
		})); err != nil {
			return err
		}
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.Info("sweep scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) job(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), schedulerJobTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			s.log.WithError(err).Warnf("%s sweep failed", name)
		}
	}
}
