// Package metrics holds the engine's Prometheus instrumentation. Metrics are
// registered globally via promauto; tests measure increments rather than
// absolute values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStartedTotal counts reconciliation sessions created.
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_sessions_started_total",
		Help: "Number of reconciliation sessions started.",
	})

	// SessionsCompletedTotal counts sessions by terminal outcome.
	SessionsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_sessions_completed_total",
		Help: "Number of reconciliation sessions completed, by outcome.",
	}, []string{"outcome"})

	// OracleAttemptsTotal counts order-status checks issued by the poller.
	OracleAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_oracle_attempts_total",
		Help: "Number of order status checks issued.",
	})

	// VerificationDurationSeconds observes time from gateway acceptance to a
	// terminal polling outcome.
	VerificationDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_verification_duration_seconds",
		Help:    "Duration of payment verification polling.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ManualRetriesTotal counts user-triggered re-checks by result.
	ManualRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_manual_retries_total",
		Help: "Number of manual verification retries, by result.",
	}, []string{"result"})
)
