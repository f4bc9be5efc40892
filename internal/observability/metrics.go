package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sendAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pollctl",
			Subsystem: "protocol",
			Name:      "send_attempts_total",
			Help:      "Task send attempts, one per freshly opened session.",
		},
		[]string{"endpoint"},
	)
	attemptTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pollctl",
			Subsystem: "protocol",
			Name:      "attempt_timeouts_total",
			Help:      "Attempts that elapsed without a reply and consumed retry budget.",
		},
		[]string{"endpoint"},
	)
	runOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pollctl",
			Subsystem: "protocol",
			Name:      "runs_total",
			Help:      "Completed protocol runs by outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pollctl",
			Subsystem: "protocol",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one protocol run.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sendAttempts, attemptTimeouts, runOutcomes, runDuration)
	})
}

func RecordSendAttempt(endpoint string) {
	RegisterMetrics()
	sendAttempts.WithLabelValues(endpoint).Inc()
}

func RecordAttemptTimeout(endpoint string) {
	RegisterMetrics()
	attemptTimeouts.WithLabelValues(endpoint).Inc()
}

func RecordRun(endpoint, outcome string, duration time.Duration) {
	RegisterMetrics()
	runOutcomes.WithLabelValues(endpoint, outcome).Inc()
	runDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}
