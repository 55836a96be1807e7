package timeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reader's Prometheus instruments. All Reader methods
// tolerate a nil *Metrics, so instrumentation is strictly opt-in.
type Metrics struct {
	checkpointHits   prometheus.Counter
	checkpointMisses prometheus.Counter
	freshQueries     prometheus.Counter
	rowsSkipped      prometheus.Counter
	transientRetries prometheus.Counter
	fetchLatency     prometheus.Histogram
}

// NewMetrics creates and registers the reader metrics. Pass nil to use
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		checkpointHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_checkpoint_hits_total",
			Help: "Window requests resumed from a cached iterator checkpoint.",
		}),
		checkpointMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_checkpoint_misses_total",
			Help: "Window requests with no usable checkpoint.",
		}),
		freshQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_fresh_queries_total",
			Help: "Fresh store queries issued by window requests.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_rows_skipped_total",
			Help: "Rows discarded while skipping forward after a checkpoint miss.",
		}),
		transientRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_transient_retries_total",
			Help: "Operations retried after a transient store failure or failed resume.",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeline_fetch_window_seconds",
			Help:    "End-to-end FetchWindow latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(
		m.checkpointHits, m.checkpointMisses, m.freshQueries,
		m.rowsSkipped, m.transientRetries, m.fetchLatency,
	)
	return m
}

func (m *Metrics) checkpointHit() {
	if m != nil {
		m.checkpointHits.Inc()
	}
}

func (m *Metrics) checkpointMiss() {
	if m != nil {
		m.checkpointMisses.Inc()
	}
}

func (m *Metrics) freshQuery() {
	if m != nil {
		m.freshQueries.Inc()
	}
}

func (m *Metrics) rowSkipped() {
	if m != nil {
		m.rowsSkipped.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.transientRetries.Inc()
	}
}

func (m *Metrics) observeFetch(d time.Duration) {
	if m != nil {
		m.fetchLatency.Observe(d.Seconds())
	}
}
