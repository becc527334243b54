package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordQuery("success", 0.2)
	m.RecordQuery("escalated", 1.1)
	m.RecordPass("small", 100, false)
	m.RecordPass("expert", 250, true)
	m.RecordEscalation()
	m.RecordCache("hit")
	m.RecordCache("hit")

	if got := testutil.ToFloat64(m.Queries.WithLabelValues("success")); got != 1 {
		t.Errorf("success queries = %v", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("expert")); got != 250 {
		t.Errorf("expert tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.Cancelled); got != 1 {
		t.Errorf("cancelled = %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("cache hits = %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordQuery("error", 0)
	m.RecordPass("small", 1, true)
	m.RecordEscalation()
	m.RecordCache("miss")
}
