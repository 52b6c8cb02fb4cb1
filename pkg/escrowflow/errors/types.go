package errors

import (
	"fmt"
	"strings"
)

// StaleUTxOError indicates the escrow output a transition spends is no
// longer available, usually because another proposer spent it first.
// Re-fetching the escrow and rebuilding the transition may succeed.
type StaleUTxOError struct {
	// Ref is the output reference, "txhash#index".
	Ref string
	// Err is the ledger error, such as ledger.ErrUTxOSpent.
	Err error
}

// Error implements the error interface.
func (e *StaleUTxOError) Error() string {
	return fmt.Sprintf("stale escrow output %s: %v", e.Ref, e.Err)
}

// Unwrap returns the ledger error.
func (e *StaleUTxOError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// SignatureRequirementError indicates a transition lacks a required signer.
type SignatureRequirementError struct {
	Transition string
	// Required lists every signer the transition needs, as key hash hex.
	Required []string
	// Missing lists the required signers that were not provided.
	Missing []string
	// AnyOf is set when one of Required is enough.
	AnyOf bool
}

// Error implements the error interface.
func (e *SignatureRequirementError) Error() string {
	if e.AnyOf {
		return fmt.Sprintf("%s requires a signature from one of %s",
			e.Transition, strings.Join(e.Required, ", "))
	}
	return fmt.Sprintf("%s requires signatures from %s, missing %s",
		e.Transition, strings.Join(e.Required, ", "), strings.Join(e.Missing, ", "))
}

// PreconditionError indicates a transition failed local validation before
// anything was sent to the ledger.
type PreconditionError struct {
	Transition string
	// Check names the failed rule, e.g. "state", "process_hash", "successor".
	Check   string
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("%s precondition %s failed: %s", e.Transition, e.Check, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// LedgerRejectionError reports a transaction the ledger refused. The ledger
// error is kept verbatim.
type LedgerRejectionError struct {
	Transition string
	Err        error
}

// Error implements the error interface.
func (e *LedgerRejectionError) Error() string {
	return fmt.Sprintf("ledger rejected %s: %v", e.Transition, e.Err)
}

// Unwrap returns the ledger error.
func (e *LedgerRejectionError) Unwrap() error {
	return e.Err
}
