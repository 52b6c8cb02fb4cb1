package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics implements MetricsRecorder with Prometheus collectors, for
// deployments scraped at /metrics instead of exporting through OTel.
type promMetrics struct {
	compiles    *prometheus.CounterVec
	compileTime prometheus.Histogram
	transitions *prometheus.CounterVec
	submits     *prometheus.CounterVec
	submitTime  *prometheus.HistogramVec
	datumSize   *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the escrowflow collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (MetricsRecorder, error) {
	m := &promMetrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowflow_compiles_total",
			Help: "Task graph reductions by outcome.",
		}, []string{"outcome"}),
		compileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrowflow_compile_duration_seconds",
			Help:    "Task graph reduction latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowflow_transitions_total",
			Help: "Transition proposals by transition and outcome.",
		}, []string{"transition", "outcome"}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowflow_submits_total",
			Help: "Ledger submissions by transition and outcome.",
		}, []string{"transition", "outcome"}),
		submitTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrowflow_submit_duration_seconds",
			Help:    "Build, sign and submit latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transition"}),
		datumSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrowflow_datum_size_bytes",
			Help:    "Encoded size of escrow output datums.",
			Buckets: prometheus.LinearBuckets(64, 64, 8),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.compiles, m.compileTime, m.transitions, m.submits, m.submitTime, m.datumSize,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *promMetrics) RecordCompile(_ context.Context, _ int, duration time.Duration, err error) {
	m.compiles.WithLabelValues(outcome(err)).Inc()
	m.compileTime.Observe(duration.Seconds())
}

func (m *promMetrics) RecordTransition(_ context.Context, transition string, err error) {
	m.transitions.WithLabelValues(transition, outcome(err)).Inc()
}

func (m *promMetrics) RecordSubmit(_ context.Context, transition string, duration time.Duration, err error) {
	m.submits.WithLabelValues(transition, outcome(err)).Inc()
	m.submitTime.WithLabelValues(transition).Observe(duration.Seconds())
}

func (m *promMetrics) RecordDatumSize(_ context.Context, kind string, sizeBytes int64) {
	m.datumSize.WithLabelValues(kind).Observe(float64(sizeBytes))
}
