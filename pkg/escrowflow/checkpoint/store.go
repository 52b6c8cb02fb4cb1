// Package checkpoint journals the transactions applied to each escrow so a
// process can find an escrow's current output after a restart.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists checkpoints keyed by escrow id and transaction hash.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a checkpoint. Saving the same (escrowID, txHash) again
	// replaces the data and moves it to the end of the journal.
	Save(escrowID, txHash string, data []byte) error

	// Load retrieves a checkpoint.
	// Returns ErrNotFound if checkpoint doesn't exist.
	Load(escrowID, txHash string) ([]byte, error)

	// Latest returns the checkpoint with the highest sequence.
	// Returns ErrNotFound if the escrow has no checkpoints.
	Latest(escrowID string) ([]byte, error)

	// List returns all checkpoints for an escrow, ordered by sequence.
	// Returns empty slice (not error) if the escrow has no checkpoints.
	List(escrowID string) ([]Info, error)

	// Escrows returns the ids of all journaled escrows, sorted.
	Escrows() ([]string, error)

	// Delete removes a specific checkpoint.
	// Returns nil if checkpoint doesn't exist.
	Delete(escrowID, txHash string) error

	// DeleteEscrow removes all checkpoints for an escrow.
	// Returns nil if the escrow has no checkpoints.
	DeleteEscrow(escrowID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	EscrowID  string
	TxHash    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
