package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the reasoning loop.
// All Record* methods are safe on a nil receiver so packages can run without
// metrics wired in.
type Metrics struct {
	Queries       *prometheus.CounterVec
	Passes        *prometheus.CounterVec
	Tokens        *prometheus.CounterVec
	Escalations   prometheus.Counter
	Cancelled     prometheus.Counter
	CacheLookups  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_queries_total",
			Help: "Queries executed, by outcome",
		}, []string{"outcome"}),
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_passes_total",
			Help: "Reasoning passes executed, by tier",
		}, []string{"tier"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_tokens_total",
			Help: "Tokens charged, by tier",
		}, []string{"tier"}),
		Escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "brain_escalations_total",
			Help: "Cascade escalations from the small to the expert tier",
		}),
		Cancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "brain_cancelled_passes_total",
			Help: "Speculative passes cancelled after the other tier won",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_canvas_cache_lookups_total",
			Help: "Canvas cache lookups, by result (hit, miss, build_error)",
		}, []string{"result"}),
		QueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "brain_query_duration_seconds",
			Help:    "End-to-end query latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}

// RecordQuery counts one finished query.
func (m *Metrics) RecordQuery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(seconds)
}

// RecordPass counts one pass and its tokens.
func (m *Metrics) RecordPass(tier string, tokens int, cancelled bool) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(tier).Inc()
	m.Tokens.WithLabelValues(tier).Add(float64(tokens))
	if cancelled {
		m.Cancelled.Inc()
	}
}

// RecordEscalation counts one cascade escalation.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.Escalations.Inc()
}

// RecordCache counts one cache lookup result.
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
