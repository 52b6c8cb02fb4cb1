package escrow

import (
	"log/slog"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// DefaultProceedAmount is the lovelace a seller locks when listing.
const DefaultProceedAmount int64 = 2_000_000

// WorkflowSource resolves the task graph for a process hash.
// *registry.Workflows implements it.
type WorkflowSource interface {
	Workflow(hash datum.ProcessHash) (escrowflow.Navigator, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkflows sets where task graphs are looked up. Without it, escrows
// must carry their own Workflow.
func WithWorkflows(w WorkflowSource) Option {
	return func(e *Engine) {
		e.workflows = w
	}
}

// WithScriptAddress sets the validator address escrow outputs live at.
// Escrows loaded from any other address are refused.
func WithScriptAddress(addr string) Option {
	return func(e *Engine) {
		e.address = addr
	}
}

// WithProceedAmount sets the default proceed amount for new listings.
func WithProceedAmount(lovelace int64) Option {
	return func(e *Engine) {
		e.proceed = lovelace
	}
}

// WithPricePolicy sets how the Start deposit is decided.
func WithPricePolicy(p PricePolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.price = p
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records proposals and datum sizes.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithIDGenerator replaces the proposal id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}
