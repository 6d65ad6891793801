// Package metrics holds the Prometheus collectors of the proctoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Violations counts classified malpractice events by kind.
	Violations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Total number of detected malpractice violations",
		},
		[]string{"kind"},
	)

	// Submissions counts deliveries by payload kind and result (delivered, queued, dropped).
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_submissions_total",
			Help: "Total number of answer and exam submissions",
		},
		[]string{"kind", "result"},
	)

	// RetryAttempts counts failed attempts seen by the retrier.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_retry_attempts_total",
			Help: "Total number of failed upstream attempts",
		},
		[]string{"op"},
	)

	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_exam_outcomes_total",
			Help: "Total number of finished exam attempts by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_active_sessions_current",
			Help: "Current number of exam sessions held in memory",
		},
	)

	PendingDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_pending_submissions_current",
			Help: "Pending submissions awaiting delivery across all sessions",
		},
	)

	MalpracticeQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_malpractice_queue_depth",
			Help: "Malpractice events waiting to be persisted",
		},
	)
)

// ObserveRetry is a retry.Observer feeding RetryAttempts.
func ObserveRetry(op string, _ int, _ error) {
	RetryAttempts.WithLabelValues(op).Inc()
}
