package datum

import (
	"errors"
	"fmt"
)

// Sentinel errors for datum encoding and decoding.
var (
	// ErrInvalidNodeState indicates a NodeState that cannot be placed on chain.
	ErrInvalidNodeState = errors.New("invalid node state")

	// ErrMalformedData indicates bytes that are not a supported Plutus data encoding.
	ErrMalformedData = errors.New("malformed plutus data")

	// ErrUnknownConstructor indicates a constructor index outside the escrow schema.
	ErrUnknownConstructor = errors.New("unknown constructor")

	// ErrFieldCount indicates a constructor with the wrong number of fields.
	ErrFieldCount = errors.New("unexpected field count")

	// ErrInvalidDatum indicates datum parameters that violate escrow invariants.
	ErrInvalidDatum = errors.New("invalid escrow datum")
)

// InvalidNodeStateError describes why a NodeState was rejected.
type InvalidNodeStateError struct {
	// Current is the task id the caller tried to encode.
	Current string
	// Reason explains the rejection.
	Reason string
}

// Error implements the error interface.
func (e *InvalidNodeStateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("invalid node state: %s", e.Reason)
	}
	return fmt.Sprintf("invalid node state at %s: %s", e.Current, e.Reason)
}

// Unwrap returns ErrInvalidNodeState for errors.Is support.
func (e *InvalidNodeStateError) Unwrap() error {
	return ErrInvalidNodeState
}

// FieldError wraps a decoding failure with the field path that caused it.
type FieldError struct {
	// Path names the field, e.g. "ActiveEscrow.nodeState.outgoing".
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FieldError) Unwrap() error {
	return e.Err
}
