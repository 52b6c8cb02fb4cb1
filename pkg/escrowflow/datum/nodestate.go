package datum

import (
	"fmt"
	"slices"
)

// NodeState marks where the workflow token sits: the current task plus the
// task-level edges it arrived through or will leave through.
//
// Values built by NewNodeState are canonical: sets are sorted, free of
// duplicates, and nil when empty. Equal logical states therefore encode to
// identical bytes.
type NodeState struct {
	Current  string
	Incoming []string
	Outgoing []string
}

// NewNodeState validates and canonicalizes a position marker. At least one of
// incoming or outgoing must contain a task id.
func NewNodeState(current string, incoming, outgoing []string) (NodeState, error) {
	if current == "" {
		return NodeState{}, &InvalidNodeStateError{Reason: "current task id is empty"}
	}

	in, err := canonicalSet(current, "incoming", incoming)
	if err != nil {
		return NodeState{}, err
	}
	out, err := canonicalSet(current, "outgoing", outgoing)
	if err != nil {
		return NodeState{}, err
	}
	if in == nil && out == nil {
		return NodeState{}, &InvalidNodeStateError{
			Current: current,
			Reason:  "both incoming and outgoing are empty",
		}
	}

	return NodeState{Current: current, Incoming: in, Outgoing: out}, nil
}

func canonicalSet(current, name string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	set := slices.Clone(ids)
	for _, id := range set {
		if id == "" {
			return nil, &InvalidNodeStateError{Current: current, Reason: name + " contains an empty task id"}
		}
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}

// Equal reports whether two node states are identical.
func (n NodeState) Equal(o NodeState) bool {
	return n.Current == o.Current &&
		slices.Equal(n.Incoming, o.Incoming) &&
		slices.Equal(n.Outgoing, o.Outgoing)
}

// HasOutgoing reports whether id is one of the declared outgoing tasks.
func (n NodeState) HasOutgoing(id string) bool {
	_, found := slices.BinarySearch(n.Outgoing, id)
	return found
}

// ToData converts the node state to its on-chain shape:
// Constr0[current, Some(incoming) | None, Some(outgoing) | None].
func (n NodeState) ToData() Data {
	return NewConstr(0, Bytes(n.Current), optionalSet(n.Incoming), optionalSet(n.Outgoing))
}

func optionalSet(ids []string) Data {
	if len(ids) == 0 {
		return NewConstr(1)
	}
	items := make(List, len(ids))
	for i, id := range ids {
		items[i] = Bytes(id)
	}
	return NewConstr(0, items)
}

// EncodeNodeState returns the canonical CBOR of a node state.
func EncodeNodeState(n NodeState) ([]byte, error) {
	canonical, err := NewNodeState(n.Current, n.Incoming, n.Outgoing)
	if err != nil {
		return nil, err
	}
	return EncodeData(canonical.ToData())
}

// DecodeNodeState parses CBOR produced by EncodeNodeState.
func DecodeNodeState(b []byte) (NodeState, error) {
	d, err := DecodeData(b)
	if err != nil {
		return NodeState{}, err
	}
	return NodeStateFromData(d)
}

// NodeStateFromData converts an on-chain node state back into a NodeState.
func NodeStateFromData(d Data) (NodeState, error) {
	c, err := expectConstr(d, "nodeState", 0, 3)
	if err != nil {
		return NodeState{}, err
	}
	current, err := expectBytes(c.Fields[0], "nodeState.current")
	if err != nil {
		return NodeState{}, err
	}
	incoming, err := setFromData(c.Fields[1], "nodeState.incoming")
	if err != nil {
		return NodeState{}, err
	}
	outgoing, err := setFromData(c.Fields[2], "nodeState.outgoing")
	if err != nil {
		return NodeState{}, err
	}
	return NewNodeState(string(current), incoming, outgoing)
}

func setFromData(d Data, path string) ([]string, error) {
	c, ok := d.(Constr)
	if !ok {
		return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: want constructor, got %T", ErrMalformedData, d)}
	}
	switch c.Index {
	case 1:
		if len(c.Fields) != 0 {
			return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: None has %d fields", ErrFieldCount, len(c.Fields))}
		}
		return nil, nil
	case 0:
		if len(c.Fields) != 1 {
			return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: Some has %d fields", ErrFieldCount, len(c.Fields))}
		}
		list, ok := c.Fields[0].(List)
		if !ok {
			return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: want list, got %T", ErrMalformedData, c.Fields[0])}
		}
		ids := make([]string, 0, len(list))
		for i, item := range list {
			b, err := expectBytes(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			ids = append(ids, string(b))
		}
		return ids, nil
	default:
		return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: option constructor %d", ErrUnknownConstructor, c.Index)}
	}
}
