// Package errors provides error categorization and recovery strategies for
// escrow transitions.
//
// The package implements a layered error handling approach:
//   - Categorization: classify failures as transient, permanent, or
//     requiring a human (a missing signature cannot be retried away)
//   - Retry: re-run transient failures, such as a stale UTxO, with
//     exponential backoff
//   - Handling: a Handler combines both and reports outcomes through hooks
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: the escrow UTxO was spent by a concurrent proposer, ledger
	// timeouts.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: a failed precondition, a transaction the ledger rejected.
	CategoryPermanent

	// CategoryHumanRequired indicates a party has to act.
	// Examples: a counterparty signature is missing.
	CategoryHumanRequired
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryHumanRequired:
		return "human_required"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, operation string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  operation,
	}
}

// Transient creates a transient error.
func Transient(err error, operation string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, operation)
}

// Permanent creates a permanent error.
func Permanent(err error, operation string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, operation)
}

// HumanRequired creates a human-required error.
func HumanRequired(err error, operation string) *CategorizedError {
	return NewCategorized(err, CategoryHumanRequired, operation)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var sigErr *SignatureRequirementError
	if errors.As(err, &sigErr) {
		return CategoryHumanRequired
	}

	var staleErr *StaleUTxOError
	if errors.As(err, &staleErr) {
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Preconditions, ledger rejections, cancellation and unknown errors are
	// permanent.
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// NeedsHuman reports whether a party has to act before the operation can
// succeed.
func NeedsHuman(err error) bool {
	return Categorize(err) == CategoryHumanRequired
}
