package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	eferrors "github.com/randalmurphal/escrowflow/pkg/escrowflow/errors"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// Engine turns escrow snapshots into transaction proposals. Every
// precondition that can be checked without the ledger is checked before a
// TxSpec is returned. The engine keeps no state between calls.
type Engine struct {
	workflows WorkflowSource
	address   string
	proceed   int64
	price     PricePolicy
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	newID     func() string
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		proceed: DefaultProceedAmount,
		price:   OfferedPrice,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScriptAddress returns the configured validator address.
func (e *Engine) ScriptAddress() string { return e.address }

// ProceedAmount returns the default proceed amount.
func (e *Engine) ProceedAmount() int64 { return e.proceed }

// Workflow resolves a task graph through the configured source.
func (e *Engine) Workflow(hash datum.ProcessHash) (escrowflow.Navigator, bool) {
	if e.workflows == nil {
		return nil, false
	}
	return e.workflows.Workflow(hash)
}

// FromUTxO decodes an escrow output and attaches its registered workflow.
func (e *Engine) FromUTxO(u ledger.UTxO) (*Escrow, error) {
	esc, err := FromUTxO(u, nil)
	if err != nil {
		return nil, err
	}
	if nav, ok := e.Workflow(esc.Terms().ProcessHash); ok {
		esc.Workflow = nav
		esc.Status = DeriveStatus(esc.Datum, nav)
	}
	return esc, nil
}

// Load fetches the escrow output at ref.
func (e *Engine) Load(ctx context.Context, f ledger.Fetcher, ref ledger.Ref) (*Escrow, error) {
	u, err := f.FetchUTxO(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.FromUTxO(u)
}

// ListParams describes a new listing.
type ListParams struct {
	Buyer       datum.PubKeyHash
	Seller      datum.PubKeyHash
	ProcessHash datum.ProcessHash
	// Workflow overrides the lookup by ProcessHash.
	Workflow escrowflow.Navigator
	// ProceedAmount overrides the engine default when positive.
	ProceedAmount int64
}

// StartParams describes the buyer accepting a listing.
type StartParams struct {
	// Price is the buyer's offer, settled by the engine's PricePolicy.
	Price       int64
	ArtifactRef datum.ArtifactRef
}

// RunTaskParams describes a move to the next task.
type RunTaskParams struct {
	// Task is the task to move to. Its NodeState is derived from the
	// workflow.
	Task string
	// NodeState, when set, is used instead of deriving one from Task. It
	// must match the workflow when the workflow is known.
	NodeState *datum.NodeState
	// ArtifactRef points at the evidence of the completed task.
	ArtifactRef datum.ArtifactRef
}

// List proposes the seller's listing transaction: a new escrow output at
// the first task holding the proceed amount.
func (e *Engine) List(ctx context.Context, p ListParams, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, to, err := e.list(p, signers)
	return e.report(ctx, "", TransitionList, "", to, spec, err)
}

func (e *Engine) list(p ListParams, signers []datum.PubKeyHash) (*ledger.TxSpec, string, error) {
	const t = TransitionList

	if err := requireSigners(t, []datum.PubKeyHash{p.Seller}, false, signers); err != nil {
		return nil, "", err
	}

	nav := p.Workflow
	if nav == nil {
		var ok bool
		if nav, ok = e.Workflow(p.ProcessHash); !ok {
			return nil, "", precondition(t, "process_hash", "no workflow registered for %s", p.ProcessHash)
		}
	}
	first, ok := nav.FirstTask()
	if !ok {
		return nil, "", precondition(t, "workflow", "workflow has no entry task")
	}
	ns, err := PositionAt(nav, first.ID)
	if err != nil {
		return nil, "", preconditionErr(t, "node_state", "cannot encode entry task", err)
	}

	proceed := p.ProceedAmount
	if proceed <= 0 {
		proceed = e.proceed
	}
	d, err := datum.NewInitDatum(datum.InitParams{
		Buyer:         p.Buyer,
		Seller:        p.Seller,
		NodeState:     ns,
		ProcessHash:   p.ProcessHash,
		ProceedAmount: proceed,
	})
	if err != nil {
		return nil, "", preconditionErr(t, "datum", "invalid listing terms", err)
	}
	raw, err := datum.Encode(d)
	if err != nil {
		return nil, "", preconditionErr(t, "datum", "encode", err)
	}

	return &ledger.TxSpec{
		ID:              e.newID(),
		Transition:      string(t),
		Output:          &ledger.Output{Address: e.address, Lovelace: proceed, Datum: raw},
		Funder:          p.Seller,
		Deposit:         proceed,
		RequiredSigners: []datum.PubKeyHash{p.Seller},
	}, first.ID, nil
}

// Start proposes the buyer's acceptance. The escrow output grows by the
// price and its datum becomes active at the same task.
func (e *Engine) Start(ctx context.Context, esc *Escrow, p StartParams, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, to, err := e.start(esc, p, signers)
	return e.report(ctx, escrowID(esc), TransitionStart, currentTask(esc), to, spec, err)
}

func (e *Engine) start(esc *Escrow, p StartParams, signers []datum.PubKeyHash) (*ledger.TxSpec, string, error) {
	const t = TransitionStart

	if err := e.checkEscrow(t, esc); err != nil {
		return nil, "", err
	}
	listed, ok := esc.Datum.(datum.InitEscrow)
	if !ok {
		return nil, "", precondition(t, "datum", "want %s, got %s", datum.KindInit, esc.Datum.Kind())
	}
	if err := requireSigners(t, []datum.PubKeyHash{listed.Buyer}, false, signers); err != nil {
		return nil, "", err
	}

	price, err := e.price(listed.Common(), p.Price)
	if err != nil {
		return nil, "", preconditionErr(t, "price", "price refused", err)
	}

	next := datum.PromoteToActive(listed, p.ArtifactRef)
	raw, err := datum.Encode(next)
	if err != nil {
		return nil, "", preconditionErr(t, "datum", "encode", err)
	}
	redeemer, err := datum.EncodeRedeemer(datum.StartRedeemer(listed.Buyer))
	if err != nil {
		return nil, "", preconditionErr(t, "redeemer", "encode", err)
	}

	return &ledger.TxSpec{
		ID:              e.newID(),
		Transition:      string(t),
		Input:           inputOf(esc),
		Redeemer:        redeemer,
		Output:          &ledger.Output{Address: esc.UTxO.Address, Lovelace: esc.UTxO.Lovelace + price, Datum: raw},
		Funder:          listed.Buyer,
		Deposit:         price,
		RequiredSigners: []datum.PubKeyHash{listed.Buyer},
	}, next.NodeState.Current, nil
}

// RunTask proposes moving the escrow to one of the current task's
// successors. Both parties must sign. The locked value is carried over.
func (e *Engine) RunTask(ctx context.Context, esc *Escrow, p RunTaskParams, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, to, err := e.runTask(esc, p, signers)
	return e.report(ctx, escrowID(esc), TransitionRunTask, currentTask(esc), to, spec, err)
}

func (e *Engine) runTask(esc *Escrow, p RunTaskParams, signers []datum.PubKeyHash) (*ledger.TxSpec, string, error) {
	const t = TransitionRunTask

	if err := e.checkEscrow(t, esc); err != nil {
		return nil, "", err
	}
	terms := esc.Terms()
	if err := requireSigners(t, []datum.PubKeyHash{terms.Buyer, terms.Seller}, false, signers); err != nil {
		return nil, "", err
	}

	ns, err := e.nextPosition(t, esc, p)
	if err != nil {
		return nil, "", err
	}

	next, err := datum.Advance(esc.Datum, ns, p.ArtifactRef)
	if err != nil {
		return nil, "", preconditionErr(t, "node_state", "cannot advance", err)
	}
	raw, err := datum.Encode(next)
	if err != nil {
		return nil, "", preconditionErr(t, "datum", "encode", err)
	}
	redeemer, err := datum.EncodeRedeemer(datum.RunTaskRedeemer(next.NodeState))
	if err != nil {
		return nil, "", preconditionErr(t, "redeemer", "encode", err)
	}

	return &ledger.TxSpec{
		ID:              e.newID(),
		Transition:      string(t),
		Input:           inputOf(esc),
		Redeemer:        redeemer,
		Output:          &ledger.Output{Address: esc.UTxO.Address, Lovelace: esc.UTxO.Lovelace, Datum: raw},
		RequiredSigners: []datum.PubKeyHash{terms.Buyer, terms.Seller},
	}, next.NodeState.Current, nil
}

// nextPosition resolves and validates the NodeState a RunTask moves to.
func (e *Engine) nextPosition(t Transition, esc *Escrow, p RunTaskParams) (datum.NodeState, error) {
	current := esc.Position()
	nav := e.navigator(esc)

	target := p.Task
	if p.NodeState != nil {
		if target != "" && target != p.NodeState.Current {
			return datum.NodeState{}, precondition(t, "node_state", "task %q does not match node state at %q", target, p.NodeState.Current)
		}
		target = p.NodeState.Current
	}
	if target == "" {
		return datum.NodeState{}, precondition(t, "node_state", "no target task")
	}
	if !current.HasOutgoing(target) {
		return datum.NodeState{}, precondition(t, "successor", "%s is not an outgoing task of %s", target, current.Current)
	}

	if nav == nil {
		if p.NodeState == nil {
			return datum.NodeState{}, precondition(t, "workflow", "workflow %s is not registered and no node state was given", esc.Terms().ProcessHash)
		}
		ns, err := datum.NewNodeState(p.NodeState.Current, p.NodeState.Incoming, p.NodeState.Outgoing)
		if err != nil {
			return datum.NodeState{}, preconditionErr(t, "node_state", "malformed", err)
		}
		return ns, nil
	}

	if !slices.ContainsFunc(nav.NextTasks(current.Current), func(task escrowflow.Task) bool { return task.ID == target }) {
		return datum.NodeState{}, precondition(t, "successor", "workflow has no edge %s -> %s", current.Current, target)
	}
	want, err := PositionAt(nav, target)
	if err != nil {
		return datum.NodeState{}, preconditionErr(t, "node_state", "cannot encode "+target, err)
	}
	if p.NodeState != nil {
		got, err := datum.NewNodeState(p.NodeState.Current, p.NodeState.Incoming, p.NodeState.Outgoing)
		if err != nil {
			return datum.NodeState{}, preconditionErr(t, "node_state", "malformed", err)
		}
		if !got.Equal(want) {
			return datum.NodeState{}, precondition(t, "node_state", "edges of %s do not match the workflow", target)
		}
	}
	return want, nil
}

// Compensate proposes closing a running escrow early. The seller receives
// the full balance.
func (e *Engine) Compensate(ctx context.Context, esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, err := e.close(TransitionCompensate, datum.ActionCompensated, esc, signers)
	return e.report(ctx, escrowID(esc), TransitionCompensate, currentTask(esc), "", spec, err)
}

// Complete proposes closing an escrow whose current task is final. The
// seller receives the full balance.
func (e *Engine) Complete(ctx context.Context, esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, err := e.close(TransitionComplete, datum.ActionUncompensated, esc, signers)
	return e.report(ctx, escrowID(esc), TransitionComplete, currentTask(esc), "", spec, err)
}

func (e *Engine) close(t Transition, action datum.Action, esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	if err := e.checkEscrow(t, esc); err != nil {
		return nil, err
	}
	terms := esc.Terms()
	if err := requireSigners(t, []datum.PubKeyHash{terms.Buyer, terms.Seller}, false, signers); err != nil {
		return nil, err
	}

	if t == TransitionComplete {
		current := esc.Position()
		terminal := len(current.Outgoing) == 0
		if nav := e.navigator(esc); nav != nil {
			terminal = len(nav.NextTasks(current.Current)) == 0
		}
		if !terminal {
			return nil, precondition(t, "terminal", "task %s has successors", current.Current)
		}
	}

	redeemer, err := datum.EncodeRedeemer(datum.Redeemer{Action: action})
	if err != nil {
		return nil, preconditionErr(t, "redeemer", "encode", err)
	}
	return &ledger.TxSpec{
		ID:              e.newID(),
		Transition:      string(t),
		Input:           inputOf(esc),
		Redeemer:        redeemer,
		Payouts:         payouts(ledger.Payout{To: terms.Seller, Lovelace: esc.UTxO.Lovelace}),
		RequiredSigners: []datum.PubKeyHash{terms.Buyer, terms.Seller},
	}, nil
}

// Cancel proposes withdrawing from an escrow. A listing is cancelled by the
// seller alone and refunded to them. Once started, either party may cancel:
// the seller recovers the proceed amount and the buyer the rest.
func (e *Engine) Cancel(ctx context.Context, esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	spec, err := e.cancel(esc, signers)
	return e.report(ctx, escrowID(esc), TransitionCancel, currentTask(esc), "", spec, err)
}

func (e *Engine) cancel(esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error) {
	const t = TransitionCancel

	if err := e.checkEscrow(t, esc); err != nil {
		return nil, err
	}
	terms := esc.Terms()
	redeemer, err := datum.EncodeRedeemer(datum.Redeemer{Action: datum.ActionCancel})
	if err != nil {
		return nil, preconditionErr(t, "redeemer", "encode", err)
	}

	spec := &ledger.TxSpec{
		ID:         e.newID(),
		Transition: string(t),
		Input:      inputOf(esc),
		Redeemer:   redeemer,
	}
	if esc.Status == StatusListed {
		if err := requireSigners(t, []datum.PubKeyHash{terms.Seller}, false, signers); err != nil {
			return nil, err
		}
		spec.Payouts = payouts(ledger.Payout{To: terms.Seller, Lovelace: esc.UTxO.Lovelace})
		spec.RequiredSigners = []datum.PubKeyHash{terms.Seller}
		return spec, nil
	}

	parties := []datum.PubKeyHash{terms.Buyer, terms.Seller}
	if err := requireSigners(t, parties, true, signers); err != nil {
		return nil, err
	}
	spec.Payouts = payouts(
		ledger.Payout{To: terms.Seller, Lovelace: terms.ProceedAmount},
		ledger.Payout{To: terms.Buyer, Lovelace: esc.UTxO.Lovelace - terms.ProceedAmount},
	)
	spec.RequiredSigners = parties
	spec.AnySigner = true
	return spec, nil
}

// checkEscrow validates the snapshot a transition spends: state, custody
// and value.
func (e *Engine) checkEscrow(t Transition, esc *Escrow) error {
	if esc == nil || esc.Datum == nil {
		return precondition(t, "escrow", "no escrow snapshot")
	}
	if !CanTransition(esc.Status, t) {
		return precondition(t, "state", "cannot %s an escrow that is %s", t, esc.Status)
	}
	if e.address != "" && esc.UTxO.Address != e.address {
		return precondition(t, "custody", "output %s is at %s, not the escrow script", esc.UTxO.Ref, esc.UTxO.Address)
	}

	terms := esc.Terms()
	if e.workflows != nil && esc.Workflow == nil {
		if _, ok := e.workflows.Workflow(terms.ProcessHash); !ok {
			return precondition(t, "process_hash", "no workflow registered for %s", terms.ProcessHash)
		}
	}

	switch esc.Datum.Kind() {
	case datum.KindInit:
		if esc.UTxO.Lovelace != terms.ProceedAmount {
			return precondition(t, "value", "listing holds %d lovelace, datum expects %d", esc.UTxO.Lovelace, terms.ProceedAmount)
		}
	default:
		if esc.UTxO.Lovelace < terms.ProceedAmount {
			return precondition(t, "value", "escrow holds %d lovelace, less than the proceed amount %d", esc.UTxO.Lovelace, terms.ProceedAmount)
		}
	}
	return nil
}

func (e *Engine) navigator(esc *Escrow) escrowflow.Navigator {
	if esc.Workflow != nil {
		return esc.Workflow
	}
	nav, _ := e.Workflow(esc.Terms().ProcessHash)
	return nav
}

// report records the outcome of a proposal.
func (e *Engine) report(ctx context.Context, id string, t Transition, from, to string, spec *ledger.TxSpec, err error) (*ledger.TxSpec, error) {
	e.metrics.RecordTransition(ctx, string(t), err)
	if err != nil {
		observability.LogTransitionRejected(e.logger, id, string(t), err)
		return nil, err
	}
	if spec.Output != nil {
		kind := datum.KindActive
		if t == TransitionList {
			kind = datum.KindInit
		}
		e.metrics.RecordDatumSize(ctx, kind.String(), int64(len(spec.Output.Datum)))
	}
	observability.LogTransitionProposed(e.logger, id, string(t), from, to)
	return spec, nil
}

// requireSigners checks the provided keys against the transition's
// requirement.
func requireSigners(t Transition, required []datum.PubKeyHash, anyOf bool, provided []datum.PubKeyHash) error {
	var missing []string
	for _, r := range required {
		if slices.Contains(provided, r) {
			if anyOf {
				return nil
			}
			continue
		}
		missing = append(missing, r.String())
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(required))
	for i, r := range required {
		names[i] = r.String()
	}
	return &eferrors.SignatureRequirementError{
		Transition: string(t),
		Required:   names,
		Missing:    missing,
		AnyOf:      anyOf,
	}
}

func precondition(t Transition, check, format string, args ...any) error {
	return &eferrors.PreconditionError{Transition: string(t), Check: check, Message: fmt.Sprintf(format, args...)}
}

func preconditionErr(t Transition, check, msg string, err error) error {
	return &eferrors.PreconditionError{Transition: string(t), Check: check, Message: msg, Err: err}
}

func inputOf(esc *Escrow) *ledger.UTxO {
	u := esc.UTxO
	return &u
}

func payouts(ps ...ledger.Payout) []ledger.Payout {
	out := make([]ledger.Payout, 0, len(ps))
	for _, p := range ps {
		if p.Lovelace > 0 {
			out = append(out, p)
		}
	}
	return out
}

func escrowID(esc *Escrow) string {
	if esc == nil {
		return ""
	}
	return esc.ID
}

func currentTask(esc *Escrow) string {
	if esc == nil || esc.Datum == nil {
		return ""
	}
	return esc.Position().Current
}
