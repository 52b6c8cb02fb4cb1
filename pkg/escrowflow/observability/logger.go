// Package observability provides structured logging, metrics, and tracing
// for workflow compilation and escrow transitions.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds escrow context to a logger.
// Returns a new logger with escrow_id and transition fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "3f2a...#0", "run_task")
//	enriched.Info("building transaction") // includes escrow_id, transition
func EnrichLogger(logger *slog.Logger, escrowID, transition string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("escrow_id", escrowID),
		slog.String("transition", transition),
	)
}

// LogBuildWarning logs a diagnostic found while building a process graph.
func LogBuildWarning(logger *slog.Logger, kind, elementID, msg string) {
	if logger == nil {
		return
	}
	logger.Warn("process graph warning",
		slog.String("kind", kind),
		slog.String("element_id", elementID),
		slog.String("detail", msg),
	)
}

// LogCompile logs a successful task graph reduction.
func LogCompile(logger *slog.Logger, elements, tasks, warnings int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("task graph compiled",
		slog.Int("elements", elements),
		slog.Int("tasks", tasks),
		slog.Int("warnings", warnings),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCompileError logs a failed reduction.
func LogCompileError(logger *slog.Logger, elements int, err error) {
	if logger == nil {
		return
	}
	logger.Error("task graph compilation failed",
		slog.Int("elements", elements),
		slog.String("error", err.Error()),
	)
}

// LogTransitionProposed logs a locally validated transition.
func LogTransitionProposed(logger *slog.Logger, escrowID, transition, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("transition proposed",
		slog.String("escrow_id", escrowID),
		slog.String("transition", transition),
		slog.String("from_task", from),
		slog.String("to_task", to),
	)
}

// LogTransitionRejected logs a transition that failed local preconditions.
func LogTransitionRejected(logger *slog.Logger, escrowID, transition string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("transition rejected",
		slog.String("escrow_id", escrowID),
		slog.String("transition", transition),
		slog.String("error", err.Error()),
	)
}

// LogSubmitted logs a transaction accepted by the ledger.
func LogSubmitted(logger *slog.Logger, escrowID, transition, txHash string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("transaction submitted",
		slog.String("escrow_id", escrowID),
		slog.String("transition", transition),
		slog.String("tx_hash", txHash),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSubmitError logs a transaction the ledger refused.
func LogSubmitError(logger *slog.Logger, escrowID, transition string, err error) {
	if logger == nil {
		return
	}
	logger.Error("transaction submission failed",
		slog.String("escrow_id", escrowID),
		slog.String("transition", transition),
		slog.String("error", err.Error()),
	)
}

// LogRetry logs a retry after a transient failure.
func LogRetry(logger *slog.Logger, escrowID string, attempt int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("retrying transition",
		slog.String("escrow_id", escrowID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs a journal write.
func LogCheckpoint(logger *slog.Logger, escrowID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("escrow_id", escrowID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal).
func LogCheckpointError(logger *slog.Logger, escrowID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("escrow_id", escrowID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
