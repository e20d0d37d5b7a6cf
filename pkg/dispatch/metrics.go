package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Metrics exposes optional Prometheus instrumentation for dispatched
// operations. A nil *Metrics is safe to use (every method no-ops), so
// library code never forces metrics on a caller that hasn't configured
// them (domain-stack pick: github.com/prometheus/client_golang, the
// metrics library the rest of the example pack reaches for).
type Metrics struct {
	attempts     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	backoffDelay prometheus.Histogram
}

// NewMetrics registers dispatcher counters/histograms on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvcore",
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Dispatched operation attempts, labeled by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvcore",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Retry decisions, labeled by retry reason.",
		}, []string{"reason"}),
		backoffDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kvcore",
			Subsystem: "dispatch",
			Name:      "retry_backoff_seconds",
			Help:      "Computed controlled-backoff delay before a retry attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	reg.MustRegister(m.attempts, m.retries, m.backoffDelay)
	return m
}

func (m *Metrics) observeSuccess(attempt int) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues("success").Inc()
}

func (m *Metrics) observeFailure(reason kerr.RetryReason, retried bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if retried {
		outcome = "retrying"
		if reason != "" {
			m.retries.WithLabelValues(string(reason)).Inc()
		}
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeBackoff(seconds float64) {
	if m == nil {
		return
	}
	m.backoffDelay.Observe(seconds)
}
