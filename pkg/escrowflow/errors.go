package escrowflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrMalformedDocument indicates the process document could not be read
	// or lacks the definitions root or a choreography/process container.
	ErrMalformedDocument = errors.New("malformed process document")

	// ErrNoTasksFound indicates a valid document that contains no tasks.
	ErrNoTasksFound = errors.New("no tasks found")
)

// MalformedDocumentError explains why a process document was rejected.
type MalformedDocumentError struct {
	// Reason describes the structural problem.
	Reason string
	// Err is the underlying parser error, if any.
	Err error
}

// Error implements the error interface.
func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed process document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed process document: %s", e.Reason)
}

// Unwrap returns the parser error and ErrMalformedDocument for errors.Is/As support.
func (e *MalformedDocumentError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedDocument, e.Err}
	}
	return []error{ErrMalformedDocument}
}
