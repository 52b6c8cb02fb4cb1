package escrowflow

import (
	"log/slog"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// buildConfig holds configuration shared by parsing and compilation.
type buildConfig struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// defaultBuildConfig returns the default configuration: the default logger
// and no metrics or tracing.
func defaultBuildConfig() buildConfig {
	return buildConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// BuildOption configures graph building and compilation.
type BuildOption func(*buildConfig)

// WithLogger sets the logger used for build diagnostics.
// A nil logger disables logging; warnings are still returned as data.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithMetrics records compile counts and latency.
//
// Example:
//
//	g, err := escrowflow.Parse(r, escrowflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) BuildOption {
	return func(c *buildConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager wraps compilation in a trace span.
func WithSpanManager(s observability.SpanManager) BuildOption {
	return func(c *buildConfig) {
		if s != nil {
			c.spans = s
		}
	}
}
