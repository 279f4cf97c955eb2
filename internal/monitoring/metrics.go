package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_hold_attempts_total",
			Help: "Hold attempts by resource kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	confirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_confirmations_total",
			Help: "Payment confirmations by outcome",
		},
		[]string{"outcome"},
	)

	cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_cancellations_total",
			Help: "Reservations moved to cancelled, by reason",
		},
		[]string{"reason"},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_sweeper_runs_total",
			Help: "Hold expiry sweeper passes by status",
		},
		[]string{"status"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "venue_sweeper_duration_seconds",
			Help:    "Duration of one sweeper pass",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	projectionLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_projection_cache_lookups_total",
			Help: "Slot projection cache lookups by result",
		},
		[]string{"result"},
	)
)

// ObserveHold counts one hold attempt.
func ObserveHold(kind, outcome string) {
	holdAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveConfirm counts one confirm callback.
func ObserveConfirm(outcome string) {
	confirmations.WithLabelValues(outcome).Inc()
}

// ObserveCancel counts one reservation cancelled for reason.
func ObserveCancel(reason string) {
	cancellations.WithLabelValues(reason).Inc()
}

// ObserveSweep records one sweeper pass.
func ObserveSweep(expired int, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	sweepRuns.WithLabelValues(status).Inc()
	sweepDuration.Observe(took.Seconds())
	if expired > 0 {
		cancellations.WithLabelValues("hold_expired").Add(float64(expired))
	}
}

// ObserveProjectionLookup counts a cache lookup by result: hit, miss, error
// or bypass.
func ObserveProjectionLookup(result string) {
	projectionLookups.WithLabelValues(result).Inc()
}
