package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
)

// TaskView is the JSON form of a reduced task.
type TaskView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Kind     string   `json:"kind"`
	Previous []string `json:"previous"`
	Next     []string `json:"next"`
}

// NewTaskView converts a task.
func NewTaskView(t escrowflow.Task) TaskView {
	return TaskView{
		ID:       t.ID,
		Name:     t.Name,
		Kind:     t.Kind.String(),
		Previous: nonNil(t.PreviousTasks),
		Next:     nonNil(t.NextTasks),
	}
}

// WorkflowView describes a registered workflow.
type WorkflowView struct {
	ProcessHash datum.ProcessHash `json:"process_hash"`
	FirstTask   string            `json:"first_task,omitempty"`
	Tasks       []TaskView        `json:"tasks"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// NewWorkflowView converts a compiled workflow.
func NewWorkflowView(hash datum.ProcessHash, tg *escrowflow.TaskGraph) WorkflowView {
	v := WorkflowView{ProcessHash: hash, Tasks: []TaskView{}}
	if first, ok := tg.FirstTask(); ok {
		v.FirstTask = first.ID
	}
	for _, t := range tg.Tasks() {
		v.Tasks = append(v.Tasks, NewTaskView(t))
	}
	for _, w := range tg.Warnings() {
		v.Warnings = append(v.Warnings, w.String())
	}
	return v
}

// NodeStateView is a NodeState with its CBOR.
type NodeStateView struct {
	Current  string   `json:"current"`
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
	CBOR     string   `json:"cbor"`
}

// NewNodeStateView encodes ns.
func NewNodeStateView(ns datum.NodeState) (NodeStateView, error) {
	raw, err := datum.EncodeNodeState(ns)
	if err != nil {
		return NodeStateView{}, err
	}
	return NodeStateView{
		Current:  ns.Current,
		Incoming: nonNil(ns.Incoming),
		Outgoing: nonNil(ns.Outgoing),
		CBOR:     hex.EncodeToString(raw),
	}, nil
}

// DatumView is the decoded form of an escrow datum.
type DatumView struct {
	Kind          string            `json:"kind"`
	Buyer         datum.PubKeyHash  `json:"buyer"`
	Seller        datum.PubKeyHash  `json:"seller"`
	ProcessHash   datum.ProcessHash `json:"process_hash"`
	ProceedAmount int64             `json:"proceed_amount"`
	NodeState     NodeStateView     `json:"node_state"`
	ArtifactRef   string            `json:"artifact_ref,omitempty"`
	// Data is the detailed-schema JSON of the whole datum.
	Data json.RawMessage `json:"data"`
}

// NewDatumView converts a decoded datum.
func NewDatumView(d datum.Datum) (DatumView, error) {
	terms := d.Common()
	ns, err := NewNodeStateView(d.Position())
	if err != nil {
		return DatumView{}, err
	}
	data, err := datum.MarshalJSON(d.ToData())
	if err != nil {
		return DatumView{}, err
	}
	v := DatumView{
		Kind:          d.Kind().String(),
		Buyer:         terms.Buyer,
		Seller:        terms.Seller,
		ProcessHash:   terms.ProcessHash,
		ProceedAmount: terms.ProceedAmount,
		NodeState:     ns,
		Data:          data,
	}
	if active, ok := d.(datum.ActiveEscrow); ok {
		v.ArtifactRef = active.ArtifactRef.String()
	}
	return v, nil
}

// DecodeDatumHex decodes a hex CBOR datum into its view.
func DecodeDatumHex(s string) (DatumView, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return DatumView{}, fmt.Errorf("%w: not hex: %v", datum.ErrMalformedData, err)
	}
	d, err := datum.Decode(raw)
	if err != nil {
		return DatumView{}, err
	}
	return NewDatumView(d)
}

// EscrowView describes an escrow. Closed escrows carry only the status and
// the hash of the closing transaction.
type EscrowView struct {
	ID       string     `json:"id"`
	Status   string     `json:"status"`
	Allowed  []string   `json:"allowed"`
	TxHash   string     `json:"tx_hash,omitempty"`
	Ref      string     `json:"ref,omitempty"`
	Address  string     `json:"address,omitempty"`
	Lovelace int64      `json:"lovelace,omitempty"`
	Datum    *DatumView `json:"datum,omitempty"`
}

// NewEscrowView converts an escrow snapshot.
func NewEscrowView(e *escrow.Escrow) (EscrowView, error) {
	d, err := NewDatumView(e.Datum)
	if err != nil {
		return EscrowView{}, err
	}
	allowed := []string{}
	for _, t := range escrow.Allowed(e.Status) {
		allowed = append(allowed, string(t))
	}
	return EscrowView{
		ID:       e.ID,
		Status:   e.Status.String(),
		Allowed:  allowed,
		Ref:      e.UTxO.Ref.String(),
		Address:  e.UTxO.Address,
		Lovelace: e.UTxO.Lovelace,
		Datum:    &d,
	}, nil
}

// ClosedEscrowView describes an escrow from its closing checkpoint.
func ClosedEscrowView(cp *checkpoint.Checkpoint) EscrowView {
	return EscrowView{
		ID:      cp.EscrowID,
		Status:  cp.Status,
		Allowed: []string{},
		TxHash:  cp.TxHash,
	}
}

// OutputView is a continuing escrow output.
type OutputView struct {
	Address  string `json:"address"`
	Lovelace int64  `json:"lovelace"`
	Datum    string `json:"datum"`
}

// PayoutView is a release to a party.
type PayoutView struct {
	To       datum.PubKeyHash `json:"to"`
	Lovelace int64            `json:"lovelace"`
}

// SpecView is the JSON form of a proposed transaction.
type SpecView struct {
	ID              string             `json:"id"`
	Transition      string             `json:"transition"`
	Input           string             `json:"input,omitempty"`
	Redeemer        string             `json:"redeemer,omitempty"`
	Output          *OutputView        `json:"output,omitempty"`
	Payouts         []PayoutView       `json:"payouts,omitempty"`
	Funder          *datum.PubKeyHash  `json:"funder,omitempty"`
	Deposit         int64              `json:"deposit,omitempty"`
	RequiredSigners []datum.PubKeyHash `json:"required_signers"`
	AnySigner       bool               `json:"any_signer,omitempty"`
}

// NewSpecView converts a proposal.
func NewSpecView(spec *ledger.TxSpec) SpecView {
	v := SpecView{
		ID:              spec.ID,
		Transition:      spec.Transition,
		Deposit:         spec.Deposit,
		RequiredSigners: spec.RequiredSigners,
		AnySigner:       spec.AnySigner,
	}
	if spec.Input != nil {
		v.Input = spec.Input.Ref.String()
	}
	if len(spec.Redeemer) > 0 {
		v.Redeemer = hex.EncodeToString(spec.Redeemer)
	}
	if spec.Output != nil {
		v.Output = &OutputView{
			Address:  spec.Output.Address,
			Lovelace: spec.Output.Lovelace,
			Datum:    hex.EncodeToString(spec.Output.Datum),
		}
	}
	for _, p := range spec.Payouts {
		v.Payouts = append(v.Payouts, PayoutView{To: p.To, Lovelace: p.Lovelace})
	}
	if !spec.Funder.IsZero() {
		funder := spec.Funder
		v.Funder = &funder
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
