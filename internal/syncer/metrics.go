package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes reconciliation health. A nil *Metrics records nothing.
type Metrics struct {
	passes         *prometheus.CounterVec
	duration       prometheus.Histogram
	remoteFailures *prometheus.CounterVec
	pending        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Reconciliation passes by outcome.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookshelf",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Subsystem: "sync",
			Name:      "remote_failures_total",
			Help:      "Failed remote library store calls by operation.",
		}, []string{"op"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bookshelf",
			Subsystem: "sync",
			Name:      "pending_items",
			Help:      "Mutation intents waiting for the remote store.",
		}, []string{"queue"}),
	}
	reg.MustRegister(m.passes, m.duration, m.remoteFailures, m.pending)
	return m
}

func (m *Metrics) observePass(r Report) {
	if m == nil {
		return
	}
	result := "ok"
	if r.Failures > 0 {
		result = "partial"
	}
	m.passes.WithLabelValues(result).Inc()
	m.duration.Observe(r.Duration.Seconds())
}

func (m *Metrics) remoteFailure(op string) {
	if m == nil {
		return
	}
	m.remoteFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) setPending(deletions, uploads int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues("deletions").Set(float64(deletions))
	m.pending.WithLabelValues("uploads").Set(float64(uploads))
}
