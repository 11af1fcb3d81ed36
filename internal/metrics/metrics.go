// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	paymentsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "payments",
			Name:      "settled_total",
			Help:      "Total rent payments settled, by payout routing.",
		},
		[]string{"payout_type"},
	)

	paymentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "payments",
			Name:      "rejected_total",
			Help:      "Total payment attempts rejected before settlement.",
		},
		[]string{"reason"},
	)

	escrowReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "escrow",
			Name:      "releases_total",
			Help:      "Total escrow balances released to wallets.",
		},
	)

	reminderDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Total reminder dispatches, by kind.",
		},
		[]string{"kind"},
	)

	sweepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "sweeps",
			Name:      "item_failures_total",
			Help:      "Per-item failures inside scheduled sweeps.",
		},
		[]string{"sweep"},
	)
)

func init() {
	Registry.MustRegister(paymentsSettled, paymentsRejected, escrowReleases,
		reminderDispatches, sweepFailures)
}

// PaymentSettled records one settled payment routed by payout type.
func PaymentSettled(payoutType string) {
	paymentsSettled.WithLabelValues(payoutType).Inc()
}

// PaymentRejected records a payment turned away before settlement.
func PaymentRejected(reason string) {
	paymentsRejected.WithLabelValues(reason).Inc()
}

// EscrowReleased records one escrow balance released to a wallet.
func EscrowReleased() {
	escrowReleases.Inc()
}

// ReminderDispatched records one reminder dispatch.
func ReminderDispatched(kind string) {
	reminderDispatches.WithLabelValues(kind).Inc()
}

// SweepItemFailed records a per-item failure inside a sweep.
func SweepItemFailed(sweep string) {
	sweepFailures.WithLabelValues(sweep).Inc()
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
