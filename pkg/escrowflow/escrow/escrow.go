package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
)

var (
	// ErrUnknownTask indicates a task id absent from the workflow.
	ErrUnknownTask = errors.New("unknown task")

	// ErrNoDatum indicates an output without an inline datum.
	ErrNoDatum = errors.New("output carries no escrow datum")
)

// Escrow is a snapshot of one escrow output.
type Escrow struct {
	// ID names the escrow in logs and journals. It defaults to the
	// reference of the output it was loaded from.
	ID     string
	UTxO   ledger.UTxO
	Datum  datum.Datum
	Status Status
	// Workflow is the task graph the datum's process hash refers to. Nil
	// when it is not known locally.
	Workflow escrowflow.Navigator
}

// Terms returns the fields fixed at listing.
func (e *Escrow) Terms() datum.Terms {
	return e.Datum.Common()
}

// Position returns the current workflow position.
func (e *Escrow) Position() datum.NodeState {
	return e.Datum.Position()
}

// FromUTxO decodes an escrow output. nav may be nil.
func FromUTxO(u ledger.UTxO, nav escrowflow.Navigator) (*Escrow, error) {
	if len(u.Datum) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDatum, u.Ref)
	}
	d, err := datum.Decode(u.Datum)
	if err != nil {
		return nil, fmt.Errorf("decode datum at %s: %w", u.Ref, err)
	}
	return &Escrow{
		ID:       u.Ref.String(),
		UTxO:     u,
		Datum:    d,
		Status:   DeriveStatus(d, nav),
		Workflow: nav,
	}, nil
}

// Load fetches and decodes the escrow output at ref.
func Load(ctx context.Context, f ledger.Fetcher, ref ledger.Ref, nav escrowflow.Navigator) (*Escrow, error) {
	u, err := f.FetchUTxO(ctx, ref)
	if err != nil {
		return nil, err
	}
	return FromUTxO(u, nav)
}

// DeriveStatus infers the status of a live escrow from its datum. An
// active escrow still positioned at the workflow's first task is Started;
// any other active escrow is Running. Without a workflow every active
// escrow is Running.
func DeriveStatus(d datum.Datum, nav escrowflow.Navigator) Status {
	switch d.Kind() {
	case datum.KindInit:
		return StatusListed
	case datum.KindActive:
		if nav == nil {
			return StatusRunning
		}
		first, ok := nav.FirstTask()
		if !ok {
			return StatusRunning
		}
		start, err := PositionAt(nav, first.ID)
		if err == nil && start.Equal(d.Position()) {
			return StatusStarted
		}
		return StatusRunning
	default:
		return StatusUnknown
	}
}

// PositionAt builds the NodeState for a task: its previous tasks are the
// incoming set and its next tasks the outgoing set. A task with neither
// cannot be encoded and yields an *datum.InvalidNodeStateError.
func PositionAt(nav escrowflow.Navigator, taskID string) (datum.NodeState, error) {
	if _, ok := nav.Task(taskID); !ok {
		return datum.NodeState{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return datum.NewNodeState(taskID, ids(nav.PreviousTasks(taskID)), ids(nav.NextTasks(taskID)))
}

func ids(tasks []escrowflow.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
