package errors

import (
	"context"
	"log/slog"
)

// Handler coordinates retry and reporting for escrow operations.
type Handler struct {
	retry       RetryConfig
	logger      *slog.Logger
	onHuman     func(err error)
	onExhausted func(err error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// NewHandler creates a new error handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		retry:  DefaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) HandlerOption {
	return func(h *Handler) {
		h.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithOnHumanRequired sets a callback for failures a party has to resolve,
// such as a missing signature.
func WithOnHumanRequired(fn func(err error)) HandlerOption {
	return func(h *Handler) {
		h.onHuman = fn
	}
}

// WithOnExhausted sets a callback for failures that retrying did not fix.
func WithOnExhausted(fn func(err error)) HandlerOption {
	return func(h *Handler) {
		h.onExhausted = fn
	}
}

// ExecuteResult contains the result of a handled execution.
type ExecuteResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the error if failed.
	Err error

	// Category is the category of Err. Meaningless when Err is nil.
	Category Category

	// Attempts is the total number of attempts made.
	Attempts int
}

// Execute runs a function with retry handling.
func (h *Handler) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return Execute(ctx, h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Err
}

// Execute runs fn, retrying transient failures, and reports the final
// outcome through the handler's hooks.
func Execute[T any](
	ctx context.Context,
	h *Handler,
	fn func(ctx context.Context) (T, error),
) ExecuteResult[T] {
	result := Retry(ctx, h.retry, fn)
	if result.Err == nil {
		return ExecuteResult[T]{Value: result.Value, Attempts: result.Attempts}
	}

	category := Categorize(result.Err)
	switch category {
	case CategoryHumanRequired:
		if h.onHuman != nil {
			h.onHuman(result.Err)
		}
	default:
		if h.logger != nil && result.Attempts > 1 {
			h.logger.Warn("giving up after retries",
				slog.Int("attempts", result.Attempts),
				slog.String("category", category.String()),
				slog.String("error", result.Err.Error()),
			)
		}
		if h.onExhausted != nil {
			h.onExhausted(result.Err)
		}
	}

	return ExecuteResult[T]{
		Err:      result.Err,
		Category: category,
		Attempts: result.Attempts,
	}
}
