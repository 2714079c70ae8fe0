// Package metrics provides Prometheus instrumentation for envmon.
//
// Metrics exposed:
//   - envmon_ingest_total: Counter of ingestion attempts by path and result
//   - envmon_subscription_dropped_total: Counter of broker messages dropped before ingestion
//   - envmon_reading_value: Gauge of the current value of each metric
//   - envmon_metric_out_of_range: Gauge set to 1 while a metric is outside its range
//   - envmon_active_alerts: Gauge of the number of current alerts
//   - envmon_snapshot_age_seconds: Gauge of the age of the live reading
//   - envmon_poll_duration_seconds: Histogram of dashboard refresh duration
//   - envmon_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for envmon.
type Metrics struct {
	IngestTotal         *prometheus.CounterVec
	SubscriptionDropped *prometheus.CounterVec
	ReadingValue        *prometheus.GaugeVec
	MetricOutOfRange    *prometheus.GaugeVec
	ActiveAlerts        prometheus.Gauge
	SnapshotAgeSeconds  prometheus.Gauge
	PollDurationSeconds prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		IngestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "envmon_ingest_total",
			Help: "Ingestion attempts by path (request, subscription) and result",
		}, []string{"path", "result"}),

		SubscriptionDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "envmon_subscription_dropped_total",
			Help: "Broker messages dropped before ingestion",
		}, []string{"reason"}),

		ReadingValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "envmon_reading_value",
			Help: "Current value of each metric in the live reading",
		}, []string{"metric"}),

		MetricOutOfRange: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "envmon_metric_out_of_range",
			Help: "1 while the metric is outside its configured range, else 0",
		}, []string{"metric"}),

		ActiveAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "envmon_active_alerts",
			Help: "Number of metrics currently out of range",
		}),

		SnapshotAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "envmon_snapshot_age_seconds",
			Help: "Age of the live reading in seconds",
		}),

		PollDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "envmon_poll_duration_seconds",
			Help:    "Time spent building the dashboard view",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "envmon_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordIngest counts one ingestion attempt.
func (m *Metrics) RecordIngest(path, result string) {
	m.IngestTotal.WithLabelValues(path, result).Inc()
}

// RecordDropped counts one broker message dropped before ingestion.
func (m *Metrics) RecordDropped(reason string) {
	m.SubscriptionDropped.WithLabelValues(reason).Inc()
}

// SetReading sets the current value and range state of a metric.
func (m *Metrics) SetReading(metric string, value float64, inRange bool) {
	m.ReadingValue.WithLabelValues(metric).Set(value)
	out := 0.0
	if !inRange {
		out = 1
	}
	m.MetricOutOfRange.WithLabelValues(metric).Set(out)
}

// SetActiveAlerts sets the number of current alerts.
func (m *Metrics) SetActiveAlerts(n int) {
	m.ActiveAlerts.Set(float64(n))
}

// SetSnapshotAge sets the age of the live reading.
func (m *Metrics) SetSnapshotAge(seconds float64) {
	m.SnapshotAgeSeconds.Set(seconds)
}

// RecordPoll records the time spent on one dashboard refresh.
func (m *Metrics) RecordPoll(seconds float64) {
	m.PollDurationSeconds.Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
