package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordIngest("request", "success")
	m.RecordIngest("request", "success")
	m.RecordIngest("subscription", "malformed")
	m.RecordDropped("queue_full")
	m.RecordError("mirror", "put_failed")

	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("request", "success")); got != 2 {
		t.Errorf("ingest request/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("subscription", "malformed")); got != 1 {
		t.Errorf("ingest subscription/malformed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SubscriptionDropped.WithLabelValues("queue_full")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("mirror", "put_failed")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestMetrics_SetReading(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetReading("temperature", 32, false)
	if got := testutil.ToFloat64(m.ReadingValue.WithLabelValues("temperature")); got != 32 {
		t.Errorf("reading = %v, want 32", got)
	}
	if got := testutil.ToFloat64(m.MetricOutOfRange.WithLabelValues("temperature")); got != 1 {
		t.Errorf("out of range = %v, want 1", got)
	}

	m.SetReading("temperature", 24.5, true)
	if got := testutil.ToFloat64(m.MetricOutOfRange.WithLabelValues("temperature")); got != 0 {
		t.Errorf("out of range = %v, want 0", got)
	}

	m.SetActiveAlerts(2)
	m.SetSnapshotAge(4.5)
	if got := testutil.ToFloat64(m.ActiveAlerts); got != 2 {
		t.Errorf("active alerts = %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotAgeSeconds); got != 4.5 {
		t.Errorf("snapshot age = %v", got)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Two instances on separate registries must not collide.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
