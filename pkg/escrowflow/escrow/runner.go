package escrow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	eferrors "github.com/randalmurphal/escrowflow/pkg/escrowflow/errors"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/event"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/lock"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// ErrNoJournal indicates an operation needs a checkpoint store and none is
// configured.
var ErrNoJournal = errors.New("no checkpoint store configured")

// Runner carries proposals through the ledger: propose, build, sign,
// submit, journal. A spend that loses a race against another proposer is
// retried against the escrow's new output.
type Runner struct {
	engine    *Engine
	fetcher   ledger.Fetcher
	builder   ledger.Builder
	submitter ledger.Submitter

	store   checkpoint.Store
	locker  lock.Locker
	lockTTL time.Duration
	retry   eferrors.RetryConfig
	spans   observability.SpanManager
	events  event.Publisher
	onHuman func(error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJournal records every applied transaction in store.
func WithJournal(store checkpoint.Store) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLocker serializes local proposers per escrow id.
func WithLocker(l lock.Locker, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locker = l
		r.lockTTL = ttl
	}
}

// WithRetry sets the retry policy for stale outputs.
func WithRetry(cfg eferrors.RetryConfig) RunnerOption {
	return func(r *Runner) {
		r.retry = cfg
	}
}

// WithSpanManager traces each transition.
func WithSpanManager(s observability.SpanManager) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.spans = s
		}
	}
}

// WithEvents publishes an event for every applied transaction. A failed
// publish is logged and does not fail the transition.
func WithEvents(p event.Publisher) RunnerOption {
	return func(r *Runner) {
		r.events = p
	}
}

// WithOnHumanRequired is called when a transition cannot proceed without a
// party, such as a missing signature.
func WithOnHumanRequired(fn func(error)) RunnerOption {
	return func(r *Runner) {
		r.onHuman = fn
	}
}

// NewRunner creates a Runner over the ledger ports.
func NewRunner(engine *Engine, fetcher ledger.Fetcher, builder ledger.Builder, submitter ledger.Submitter, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:    engine,
		fetcher:   fetcher,
		builder:   builder,
		submitter: submitter,
		lockTTL:   lock.DefaultTTL,
		retry:     eferrors.DefaultRetry,
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the engine proposals come from.
func (r *Runner) Engine() *Engine { return r.engine }

// Result describes an applied transition.
type Result struct {
	EscrowID string
	TxHash   string
	Spec     *ledger.TxSpec
	Status   Status
	// Escrow is the continuing escrow output. Nil once the escrow closed.
	Escrow   *Escrow
	Attempts int
}

type proposeFunc func(ctx context.Context, esc *Escrow, signers []datum.PubKeyHash) (*ledger.TxSpec, error)

// List submits a new listing. An empty escrowID is replaced by a new uuid.
func (r *Runner) List(ctx context.Context, escrowID string, p ListParams, signers []ledger.Signer) (*Result, error) {
	if escrowID == "" {
		escrowID = uuid.NewString()
	}
	return r.apply(ctx, escrowID, ledger.Ref{}, TransitionList, func(ctx context.Context, _ *Escrow, keys []datum.PubKeyHash) (*ledger.TxSpec, error) {
		return r.engine.List(ctx, p, keys)
	}, signers)
}

// Start submits the buyer's acceptance of the escrow at ref. A zero ref is
// resolved from the journal.
func (r *Runner) Start(ctx context.Context, escrowID string, ref ledger.Ref, p StartParams, signers []ledger.Signer) (*Result, error) {
	return r.apply(ctx, escrowID, ref, TransitionStart, func(ctx context.Context, esc *Escrow, keys []datum.PubKeyHash) (*ledger.TxSpec, error) {
		return r.engine.Start(ctx, esc, p, keys)
	}, signers)
}

// RunTask submits a move to the next task.
func (r *Runner) RunTask(ctx context.Context, escrowID string, ref ledger.Ref, p RunTaskParams, signers []ledger.Signer) (*Result, error) {
	return r.apply(ctx, escrowID, ref, TransitionRunTask, func(ctx context.Context, esc *Escrow, keys []datum.PubKeyHash) (*ledger.TxSpec, error) {
		return r.engine.RunTask(ctx, esc, p, keys)
	}, signers)
}

// Compensate submits an early close.
func (r *Runner) Compensate(ctx context.Context, escrowID string, ref ledger.Ref, signers []ledger.Signer) (*Result, error) {
	return r.apply(ctx, escrowID, ref, TransitionCompensate, r.engine.Compensate, signers)
}

// Complete submits the close of a finished workflow.
func (r *Runner) Complete(ctx context.Context, escrowID string, ref ledger.Ref, signers []ledger.Signer) (*Result, error) {
	return r.apply(ctx, escrowID, ref, TransitionComplete, r.engine.Complete, signers)
}

// Cancel submits a withdrawal.
func (r *Runner) Cancel(ctx context.Context, escrowID string, ref ledger.Ref, signers []ledger.Signer) (*Result, error) {
	return r.apply(ctx, escrowID, ref, TransitionCancel, r.engine.Cancel, signers)
}

// Current returns the latest journaled state of an escrow. The escrow is
// nil when the last transaction closed it.
func (r *Runner) Current(ctx context.Context, escrowID string) (*Escrow, *checkpoint.Checkpoint, error) {
	cp, err := r.latest(escrowID)
	if err != nil {
		return nil, nil, err
	}
	if cp.Closed() {
		return nil, cp, nil
	}
	ref, err := ledger.ParseRef(cp.Ref)
	if err != nil {
		return nil, cp, fmt.Errorf("checkpoint %s: %w", cp.TxHash, err)
	}
	esc, err := r.engine.Load(ctx, r.fetcher, ref)
	if err != nil {
		return nil, cp, err
	}
	esc.ID = escrowID
	return esc, cp, nil
}

func (r *Runner) latest(escrowID string) (*checkpoint.Checkpoint, error) {
	if r.store == nil {
		return nil, ErrNoJournal
	}
	data, err := r.store.Latest(escrowID)
	if err != nil {
		return nil, fmt.Errorf("escrow %s: %w", escrowID, err)
	}
	return checkpoint.Unmarshal(data)
}

// submission is what one successful attempt produced.
type submission struct {
	spec *ledger.TxSpec
	hash string
	from *Escrow
}

func (r *Runner) apply(ctx context.Context, escrowID string, ref ledger.Ref, t Transition, propose proposeFunc, signers []ledger.Signer) (res *Result, err error) {
	ctx, span := r.spans.StartTransitionSpan(ctx, escrowID, string(t))
	defer func() { r.spans.EndSpanWithError(span, err) }()

	logger := observability.EnrichLogger(r.engine.logger, escrowID, string(t))

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, escrowID, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock escrow %s: %w", escrowID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil && logger != nil {
				logger.Warn("unlock failed", "error", err)
			}
		}()
	}

	if t != TransitionList && ref.IsZero() {
		cp, err := r.latest(escrowID)
		if err != nil {
			return nil, fmt.Errorf("locate escrow: %w", err)
		}
		if ref, err = ledger.ParseRef(cp.Ref); err != nil {
			return nil, fmt.Errorf("locate escrow %s: %w", escrowID, err)
		}
	}

	cfg := r.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.LogRetry(logger, escrowID, attempt, delay, err)
		r.spans.AddSpanEvent(ctx, "escrowflow.retry", attribute.Int("attempt", attempt))
	}
	handler := eferrors.NewHandler(
		eferrors.WithRetryConfig(cfg),
		eferrors.WithLogger(logger),
		eferrors.WithOnHumanRequired(r.onHuman),
	)

	keys := keyHashes(signers)
	attempt := 0
	var last error
	var seen *Escrow
	out := eferrors.Execute(ctx, handler, func(ctx context.Context) (sub submission, err error) {
		defer func() { last = err }()
		attempt++
		if attempt > 1 {
			ref = r.relocate(ctx, escrowID, ref, seen, last)
		}

		var esc *Escrow
		if t != TransitionList {
			loaded, err := r.engine.Load(ctx, r.fetcher, ref)
			if err != nil {
				return submission{}, stale(ref, fmt.Errorf("load escrow: %w", err))
			}
			loaded.ID = escrowID
			esc, seen = loaded, loaded
		}

		spec, err := propose(ctx, esc, keys)
		if err != nil {
			return submission{}, err
		}
		hash, err := r.submit(ctx, logger, escrowID, t, spec, signers)
		if err != nil {
			return submission{}, err
		}
		return submission{spec: spec, hash: hash, from: esc}, nil
	})
	if out.Err != nil {
		return nil, out.Err
	}

	return r.settle(ctx, logger, escrowID, t, out.Value, out.Attempts), nil
}

// submit builds, signs and submits one proposal. Every signer but the
// last signs partially.
func (r *Runner) submit(ctx context.Context, logger *slog.Logger, escrowID string, t Transition, spec *ledger.TxSpec, signers []ledger.Signer) (string, error) {
	done := observability.TimedOperation()
	start := time.Now()

	tx, err := r.builder.Build(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("build %s: %w", t, err)
	}
	for i, s := range signers {
		tx, err = s.Sign(ctx, tx, i < len(signers)-1)
		if err != nil {
			return "", fmt.Errorf("sign %s as %s: %w", t, s.PubKeyHash(), err)
		}
	}

	hash, err := r.submitter.Submit(ctx, tx)
	r.engine.metrics.RecordSubmit(ctx, string(t), time.Since(start), err)
	if err != nil {
		observability.LogSubmitError(logger, escrowID, string(t), err)
		if spec.Input != nil && isStale(err) {
			return "", &eferrors.StaleUTxOError{Ref: spec.Input.Ref.String(), Err: err}
		}
		return "", &eferrors.LedgerRejectionError{Transition: string(t), Err: err}
	}
	observability.LogSubmitted(logger, escrowID, string(t), hash, done())
	return hash, nil
}

// settle turns a submitted transaction into a Result and journals it.
func (r *Runner) settle(ctx context.Context, logger *slog.Logger, escrowID string, t Transition, sub submission, attempts int) *Result {
	status, _ := Target(t)
	res := &Result{
		EscrowID: escrowID,
		TxHash:   sub.hash,
		Spec:     sub.spec,
		Status:   status,
		Attempts: attempts,
	}

	if out := sub.spec.Output; out != nil {
		u := ledger.UTxO{
			Ref:      ledger.Ref{TxHash: sub.hash},
			Address:  out.Address,
			Lovelace: out.Lovelace,
			Datum:    out.Datum,
		}
		if created, err := r.fetcher.FetchUTxOs(ctx, sub.hash); err == nil {
			for _, c := range created {
				if bytes.Equal(c.Datum, out.Datum) {
					u = c
					break
				}
			}
		}
		esc, err := r.engine.FromUTxO(u)
		if err == nil {
			if esc.Workflow == nil && sub.from != nil && sub.from.Workflow != nil {
				esc.Workflow = sub.from.Workflow
				esc.Status = DeriveStatus(esc.Datum, esc.Workflow)
			}
			esc.ID = escrowID
			res.Escrow = esc
			res.Status = esc.Status
		} else if logger != nil {
			logger.Warn("cannot decode continuing output", "tx_hash", sub.hash, "error", err)
		}
	}

	r.journal(logger, res)
	r.publish(ctx, logger, res, sub.from)
	return res
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, res *Result, from *Escrow) {
	if r.events == nil {
		return
	}
	evt := event.New(res.EscrowID, res.Spec.Transition, res.TxHash, res.Status.String())
	if from != nil {
		evt.Spent = from.UTxO.Ref.String()
	}
	if res.Escrow != nil {
		evt.Ref = res.Escrow.UTxO.Ref.String()
		evt.Task = res.Escrow.Position().Current
	}
	if err := r.events.Publish(ctx, evt); err != nil && logger != nil {
		logger.Warn("event publish failed", "escrow_id", res.EscrowID, "tx_hash", res.TxHash, "error", err)
	}
}

func (r *Runner) journal(logger *slog.Logger, res *Result) {
	if r.store == nil {
		return
	}
	cp := checkpoint.New(res.EscrowID, res.Spec.Transition, res.TxHash, res.Status.String()).
		WithProposal(res.Spec.ID).
		WithAttempt(res.Attempts)
	if res.Escrow != nil {
		cp.WithOutput(res.Escrow.UTxO.Ref.String(), res.Escrow.UTxO.Datum, res.Escrow.Position().Current)
	}

	data, err := cp.Marshal()
	if err != nil {
		observability.LogCheckpointError(logger, res.EscrowID, "marshal", err)
		return
	}
	if err := r.store.Save(res.EscrowID, res.TxHash, data); err != nil {
		observability.LogCheckpointError(logger, res.EscrowID, "save", err)
		return
	}
	observability.LogCheckpoint(logger, res.EscrowID, len(data))
}

// relocate finds where the escrow moved after ref went stale. The journal
// is asked first. Otherwise the transaction that spent ref is fetched and
// its output at the script address continues the escrow, provided it keeps
// the terms last seen.
func (r *Runner) relocate(ctx context.Context, escrowID string, ref ledger.Ref, seen *Escrow, cause error) ledger.Ref {
	if cp, err := r.latest(escrowID); err == nil && !cp.Closed() {
		if moved, err := ledger.ParseRef(cp.Ref); err == nil && moved != ref {
			return moved
		}
	}

	by, ok := ledger.SpentBy(cause)
	if !ok {
		return ref
	}
	created, err := r.fetcher.FetchUTxOs(ctx, by)
	if err != nil {
		return ref
	}
	for _, u := range created {
		if u.Address != r.engine.ScriptAddress() {
			continue
		}
		next, err := FromUTxO(u, nil)
		if err != nil {
			continue
		}
		if seen != nil && next.Terms() != seen.Terms() {
			continue
		}
		return u.Ref
	}
	return ref
}

// stale marks errors caused by a spent or missing output as transient.
func stale(ref ledger.Ref, err error) error {
	if isStale(err) {
		return &eferrors.StaleUTxOError{Ref: ref.String(), Err: err}
	}
	return err
}

func isStale(err error) bool {
	return errors.Is(err, ledger.ErrUTxOSpent) || errors.Is(err, ledger.ErrUTxONotFound)
}

func keyHashes(signers []ledger.Signer) []datum.PubKeyHash {
	out := make([]datum.PubKeyHash, len(signers))
	for i, s := range signers {
		out[i] = s.PubKeyHash()
	}
	return out
}
