package checkpoint_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
)

func TestCheckpoint_New(t *testing.T) {
	cp := checkpoint.New("escrow-1", "start", "abcd", "started")

	assert.Equal(t, checkpoint.Version, cp.Version)
	assert.Equal(t, "escrow-1", cp.EscrowID)
	assert.Equal(t, "start", cp.Transition)
	assert.Equal(t, "abcd", cp.TxHash)
	assert.Equal(t, "started", cp.Status)
	assert.Equal(t, 1, cp.Attempt)
	assert.True(t, cp.Closed())
	assert.False(t, cp.Timestamp.IsZero())
}

func TestCheckpoint_Builders(t *testing.T) {
	cp := checkpoint.New("escrow-1", "run_task", "abcd", "running").
		WithOutput("abcd#0", []byte{0xd8, 0x7a}, "Task_Ship").
		WithAttempt(3).
		WithProposal("p-1")

	assert.Equal(t, "abcd#0", cp.Ref)
	assert.Equal(t, []byte{0xd8, 0x7a}, cp.Datum)
	assert.Equal(t, "Task_Ship", cp.Task)
	assert.Equal(t, 3, cp.Attempt)
	assert.Equal(t, "p-1", cp.ProposalID)
	assert.False(t, cp.Closed())
}

func TestCheckpoint_MarshalUnmarshal(t *testing.T) {
	original := checkpoint.New("escrow-1", "run_task", "abcd", "running").
		WithOutput("abcd#0", []byte{0xd8, 0x7a, 0x9f}, "Task_Ship").
		WithAttempt(2)

	data, err := original.Marshal()
	require.NoError(t, err)

	loaded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.EscrowID, loaded.EscrowID)
	assert.Equal(t, original.TxHash, loaded.TxHash)
	assert.Equal(t, original.Ref, loaded.Ref)
	assert.Equal(t, original.Datum, loaded.Datum)
	assert.Equal(t, original.Task, loaded.Task)
	assert.Equal(t, original.Attempt, loaded.Attempt)
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestCheckpoint_UnmarshalInvalidJSON(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckpoint_JSONFormat(t *testing.T) {
	data, err := checkpoint.New("escrow-1", "cancel", "abcd", "cancelled").Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, float64(checkpoint.Version), raw["version"])
	assert.Equal(t, "escrow-1", raw["escrow_id"])
	assert.Equal(t, "cancel", raw["transition"])
	assert.Equal(t, "abcd", raw["tx_hash"])
	assert.Equal(t, "cancelled", raw["status"])
	assert.NotContains(t, raw, "ref")
	assert.NotContains(t, raw, "datum")
}
