package escrow

import (
	"fmt"
	"slices"
)

// Status is the lifecycle state of an escrow.
type Status int

const (
	// StatusUnknown is the zero value.
	StatusUnknown Status = iota
	// StatusListed means the seller locked the proceed amount and the buyer
	// has not accepted yet.
	StatusListed
	// StatusStarted means the buyer accepted and no task has run.
	StatusStarted
	// StatusRunning means at least one task transition has been applied.
	StatusRunning
	// StatusCompensated is terminal: the escrow closed early.
	StatusCompensated
	// StatusUncompensated is terminal: the workflow reached a final task.
	StatusUncompensated
	// StatusCancelled is terminal: a party withdrew.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusListed:
		return "listed"
	case StatusStarted:
		return "started"
	case StatusRunning:
		return "running"
	case StatusCompensated:
		return "compensated"
	case StatusUncompensated:
		return "uncompensated"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompensated || s == StatusUncompensated || s == StatusCancelled
}

// Transition names a state change.
type Transition string

// Escrow transitions.
const (
	TransitionList       Transition = "list"
	TransitionStart      Transition = "start"
	TransitionRunTask    Transition = "run_task"
	TransitionCompensate Transition = "compensate"
	TransitionComplete   Transition = "complete"
	TransitionCancel     Transition = "cancel"
)

type rule struct {
	from []Status
	to   Status
}

// transitions is the complete state machine. List has no source state.
var transitions = map[Transition]rule{
	TransitionList:       {from: nil, to: StatusListed},
	TransitionStart:      {from: []Status{StatusListed}, to: StatusStarted},
	TransitionRunTask:    {from: []Status{StatusStarted, StatusRunning}, to: StatusRunning},
	TransitionCompensate: {from: []Status{StatusRunning}, to: StatusCompensated},
	TransitionComplete:   {from: []Status{StatusRunning}, to: StatusUncompensated},
	TransitionCancel:     {from: []Status{StatusListed, StatusStarted, StatusRunning}, to: StatusCancelled},
}

// CanTransition reports whether t may be applied to an escrow in from.
func CanTransition(from Status, t Transition) bool {
	r, ok := transitions[t]
	return ok && slices.Contains(r.from, from)
}

// Target returns the status t leads to.
func Target(t Transition) (Status, bool) {
	r, ok := transitions[t]
	return r.to, ok
}

// Allowed returns the transitions that may be applied in s, in a fixed
// order.
func Allowed(s Status) []Transition {
	var out []Transition
	for _, t := range []Transition{
		TransitionStart, TransitionRunTask, TransitionCompensate, TransitionComplete, TransitionCancel,
	} {
		if CanTransition(s, t) {
			out = append(out, t)
		}
	}
	return out
}
