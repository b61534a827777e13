package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the ingestion pipelines do. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SnapshotsApplied *prometheus.CounterVec
	FetchErrors      prometheus.Counter
	StaleDropped     prometheus.Counter
	PendingMessages  prometheus.Gauge
	ActiveViews      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SnapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claudeview",
			Subsystem: "ingest",
			Name:      "snapshots_applied_total",
			Help:      "Snapshots applied to a reconciliation store, by kind (initial, incremental).",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claudeview",
			Subsystem: "ingest",
			Name:      "fetch_errors_total",
			Help:      "Snapshot fetches that failed.",
		}),
		StaleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claudeview",
			Subsystem: "ingest",
			Name:      "stale_snapshots_dropped_total",
			Help:      "Snapshots discarded because the query changed while they were in flight.",
		}),
		PendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "claudeview",
			Subsystem: "ingest",
			Name:      "pending_messages",
			Help:      "Messages held back as new across all viewer sessions.",
		}),
		ActiveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "claudeview",
			Subsystem: "ingest",
			Name:      "active_views",
			Help:      "Viewer sessions currently hosted.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SnapshotsApplied, m.FetchErrors, m.StaleDropped, m.PendingMessages, m.ActiveViews)
	}
	return m
}

func (m *Metrics) applied(kind string) {
	if m != nil {
		m.SnapshotsApplied.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) fetchFailed() {
	if m != nil {
		m.FetchErrors.Inc()
	}
}

func (m *Metrics) staleDropped() {
	if m != nil {
		m.StaleDropped.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.PendingMessages.Set(float64(n))
	}
}

func (m *Metrics) setViews(n int) {
	if m != nil {
		m.ActiveViews.Set(float64(n))
	}
}
