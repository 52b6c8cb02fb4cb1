package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint records one transaction applied to an escrow. The latest
// checkpoint of an escrow locates its current output.
type Checkpoint struct {
	Version   int       `json:"version"`
	EscrowID  string    `json:"escrow_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	Transition string `json:"transition"`
	TxHash     string `json:"tx_hash"`
	ProposalID string `json:"proposal_id,omitempty"`
	Attempt    int    `json:"attempt"`

	// Ref is the continuing escrow output, "txhash#index". Empty once the
	// escrow is closed.
	Ref    string `json:"ref,omitempty"`
	Status string `json:"status"`
	// Datum is the CBOR datum at Ref.
	Datum []byte `json:"datum,omitempty"`
	// Task is the current task id after the transition.
	Task string `json:"task,omitempty"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a checkpoint for a submitted transaction.
func New(escrowID, transition, txHash, status string) *Checkpoint {
	return &Checkpoint{
		Version:    Version,
		EscrowID:   escrowID,
		Timestamp:  time.Now().UTC(),
		Transition: transition,
		TxHash:     txHash,
		Status:     status,
		Attempt:    1,
	}
}

// WithOutput records the continuing escrow output.
func (c *Checkpoint) WithOutput(ref string, datum []byte, task string) *Checkpoint {
	c.Ref = ref
	c.Datum = datum
	c.Task = task
	return c
}

// WithAttempt sets the attempt that succeeded.
func (c *Checkpoint) WithAttempt(attempt int) *Checkpoint {
	c.Attempt = attempt
	return c
}

// WithProposal sets the id of the proposal the transaction was built from.
func (c *Checkpoint) WithProposal(id string) *Checkpoint {
	c.ProposalID = id
	return c
}

// Closed reports whether the escrow has no continuing output.
func (c *Checkpoint) Closed() bool {
	return c.Ref == ""
}
