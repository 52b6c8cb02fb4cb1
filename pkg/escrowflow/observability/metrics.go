package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records escrowflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCompile records a task graph reduction.
	RecordCompile(ctx context.Context, tasks int, duration time.Duration, err error)

	// RecordTransition records a proposed transition and whether it passed
	// local validation.
	RecordTransition(ctx context.Context, transition string, err error)

	// RecordSubmit records a ledger submission.
	RecordSubmit(ctx context.Context, transition string, duration time.Duration, err error)

	// RecordDatumSize records the encoded size of an output datum.
	RecordDatumSize(ctx context.Context, kind string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	compiles       metric.Int64Counter
	compileLatency metric.Float64Histogram
	compileTasks   metric.Int64Histogram
	transitions    metric.Int64Counter
	rejections     metric.Int64Counter
	submits        metric.Int64Counter
	submitLatency  metric.Float64Histogram
	submitErrors   metric.Int64Counter
	datumSize      metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("escrowflow")
	m := &otelMetrics{}
	var err error

	if m.compiles, err = meter.Int64Counter("escrowflow.compile.count",
		metric.WithDescription("Number of task graph compilations"),
	); err != nil {
		return nil, err
	}
	if m.compileLatency, err = meter.Float64Histogram("escrowflow.compile.latency_ms",
		metric.WithDescription("Task graph compilation latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.compileTasks, err = meter.Int64Histogram("escrowflow.compile.tasks",
		metric.WithDescription("Tasks per compiled graph"),
	); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("escrowflow.transition.proposed",
		metric.WithDescription("Number of proposed escrow transitions"),
	); err != nil {
		return nil, err
	}
	if m.rejections, err = meter.Int64Counter("escrowflow.transition.rejected",
		metric.WithDescription("Number of transitions rejected by local validation"),
	); err != nil {
		return nil, err
	}
	if m.submits, err = meter.Int64Counter("escrowflow.submit.count",
		metric.WithDescription("Number of ledger submissions"),
	); err != nil {
		return nil, err
	}
	if m.submitLatency, err = meter.Float64Histogram("escrowflow.submit.latency_ms",
		metric.WithDescription("Build, sign and submit latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.submitErrors, err = meter.Int64Counter("escrowflow.submit.errors",
		metric.WithDescription("Number of failed ledger submissions"),
	); err != nil {
		return nil, err
	}
	if m.datumSize, err = meter.Int64Histogram("escrowflow.datum.size_bytes",
		metric.WithDescription("Encoded datum size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordCompile records a task graph reduction.
func (m *otelMetrics) RecordCompile(ctx context.Context, tasks int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.compiles.Add(ctx, 1, attrs)
	m.compileLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err == nil {
		m.compileTasks.Record(ctx, int64(tasks))
	}
}

// RecordTransition records a proposed transition.
func (m *otelMetrics) RecordTransition(ctx context.Context, transition string, err error) {
	attrs := metric.WithAttributes(attribute.String("transition", transition))
	m.transitions.Add(ctx, 1, attrs)
	if err != nil {
		m.rejections.Add(ctx, 1, attrs)
	}
}

// RecordSubmit records a ledger submission.
func (m *otelMetrics) RecordSubmit(ctx context.Context, transition string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("transition", transition))
	m.submits.Add(ctx, 1, attrs)
	m.submitLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.submitErrors.Add(ctx, 1, attrs)
	}
}

// RecordDatumSize records the encoded size of an output datum.
func (m *otelMetrics) RecordDatumSize(ctx context.Context, kind string, sizeBytes int64) {
	m.datumSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("kind", kind)))
}
