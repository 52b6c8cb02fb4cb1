package datum

import "fmt"

// Action names the validator branch a spend exercises.
type Action uint64

// Redeemer constructor indices understood by the escrow validator.
const (
	ActionStart         Action = 0 // Start(buyer)
	ActionRunTask       Action = 1 // RunTask(nodeState)
	ActionCancel        Action = 2
	ActionCompensated   Action = 3
	ActionUncompensated Action = 4
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionRunTask:
		return "run_task"
	case ActionCancel:
		return "cancel"
	case ActionCompensated:
		return "compensated"
	case ActionUncompensated:
		return "uncompensated"
	default:
		return fmt.Sprintf("action(%d)", uint64(a))
	}
}

// Redeemer is the spend argument supplied with the script input.
type Redeemer struct {
	Action Action
	// Buyer is set for ActionStart.
	Buyer PubKeyHash
	// NodeState is set for ActionRunTask.
	NodeState NodeState
}

// StartRedeemer builds Start(buyer).
func StartRedeemer(buyer PubKeyHash) Redeemer {
	return Redeemer{Action: ActionStart, Buyer: buyer}
}

// RunTaskRedeemer builds RunTask(nodeState).
func RunTaskRedeemer(ns NodeState) Redeemer {
	return Redeemer{Action: ActionRunTask, NodeState: ns}
}

// ToData converts the redeemer to its on-chain shape.
func (r Redeemer) ToData() Data {
	switch r.Action {
	case ActionStart:
		return NewConstr(uint64(r.Action), Bytes(r.Buyer[:]))
	case ActionRunTask:
		return NewConstr(uint64(r.Action), r.NodeState.ToData())
	default:
		return NewConstr(uint64(r.Action))
	}
}

// EncodeRedeemer returns the CBOR of a redeemer. A RunTask node state is
// canonicalized the same way Encode canonicalizes a datum's.
func EncodeRedeemer(r Redeemer) ([]byte, error) {
	if r.Action == ActionRunTask {
		ns, err := NewNodeState(r.NodeState.Current, r.NodeState.Incoming, r.NodeState.Outgoing)
		if err != nil {
			return nil, err
		}
		r.NodeState = ns
	}
	return EncodeData(r.ToData())
}

// DecodeRedeemer parses a redeemer.
func DecodeRedeemer(b []byte) (Redeemer, error) {
	d, err := DecodeData(b)
	if err != nil {
		return Redeemer{}, err
	}
	c, ok := d.(Constr)
	if !ok {
		return Redeemer{}, &FieldError{Path: "redeemer", Err: fmt.Errorf("%w: want constructor, got %T", ErrMalformedData, d)}
	}

	r := Redeemer{Action: Action(c.Index)}
	switch r.Action {
	case ActionStart:
		if _, err := expectConstr(c, "redeemer", c.Index, 1); err != nil {
			return Redeemer{}, err
		}
		if r.Buyer, err = pubKeyHashField(c.Fields[0], "redeemer.buyer"); err != nil {
			return Redeemer{}, err
		}
	case ActionRunTask:
		if _, err := expectConstr(c, "redeemer", c.Index, 1); err != nil {
			return Redeemer{}, err
		}
		if r.NodeState, err = NodeStateFromData(c.Fields[0]); err != nil {
			return Redeemer{}, &FieldError{Path: "redeemer.nodeState", Err: err}
		}
	case ActionCancel, ActionCompensated, ActionUncompensated:
		if _, err := expectConstr(c, "redeemer", c.Index, 0); err != nil {
			return Redeemer{}, err
		}
	default:
		return Redeemer{}, &FieldError{Path: "redeemer", Err: fmt.Errorf("%w: %d", ErrUnknownConstructor, c.Index)}
	}
	return r, nil
}
