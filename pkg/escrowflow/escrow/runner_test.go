package escrow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
	eferrors "github.com/randalmurphal/escrowflow/pkg/escrowflow/errors"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/event"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/lock"
)

var fastRetry = eferrors.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     time.Millisecond,
	BackoffFactor:  1,
}

// countingLedger counts the calls that would reach a real ledger.
type countingLedger struct {
	*ledger.Memory
	builds  atomic.Int32
	submits atomic.Int32
}

func (c *countingLedger) Build(ctx context.Context, spec *ledger.TxSpec) ([]byte, error) {
	c.builds.Add(1)
	return c.Memory.Build(ctx, spec)
}

func (c *countingLedger) Submit(ctx context.Context, tx []byte) (string, error) {
	c.submits.Add(1)
	return c.Memory.Submit(ctx, tx)
}

func newRunner(t *testing.T, f *fixture, opts ...escrow.RunnerOption) (*escrow.Runner, *countingLedger, *checkpoint.MemoryStore) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	cl := &countingLedger{Memory: f.ledger}
	base := []escrow.RunnerOption{
		escrow.WithJournal(store),
		escrow.WithRetry(fastRetry),
	}
	return escrow.NewRunner(f.engine, cl, cl, cl, append(base, opts...)...), cl, store
}

func TestRunner_Lifecycle(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewMemoryLocker()
	r, _, store := newRunner(t, f, escrow.WithLocker(locker, time.Second))
	ctx := context.Background()

	listed, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	assert.Equal(t, "escrow-1", listed.EscrowID)
	assert.Equal(t, escrow.StatusListed, listed.Status)
	assert.Equal(t, 1, listed.Attempts)
	require.NotNil(t, listed.Escrow)
	assert.Equal(t, "escrow-1", listed.Escrow.ID)

	started, err := r.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{Price: 3_000_000}, []ledger.Signer{buyer})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusStarted, started.Status)
	assert.Equal(t, int64(5_000_000), started.Escrow.UTxO.Lovelace)

	running, err := r.RunTask(ctx, "escrow-1", ledger.Ref{}, escrow.RunTaskParams{Task: "Task_Ship"}, []ledger.Signer{buyer, seller})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRunning, running.Status)
	assert.Equal(t, "Task_Ship", running.Escrow.Position().Current)

	current, cp, err := r.Current(ctx, "escrow-1")
	require.NoError(t, err)
	assert.Equal(t, running.Escrow.UTxO.Ref, current.UTxO.Ref)
	assert.Equal(t, "escrow-1", current.ID)
	assert.Equal(t, "run_task", cp.Transition)
	assert.Equal(t, "Task_Ship", cp.Task)
	assert.Equal(t, running.TxHash, cp.TxHash)

	done, err := r.Complete(ctx, "escrow-1", ledger.Ref{}, []ledger.Signer{buyer, seller})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusUncompensated, done.Status)
	assert.Nil(t, done.Escrow)

	current, cp, err = r.Current(ctx, "escrow-1")
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.True(t, cp.Closed())
	assert.Equal(t, "uncompensated", cp.Status)

	infos, err := store.List("escrow-1")
	require.NoError(t, err)
	assert.Len(t, infos, 4)

	assert.Equal(t, int64(97_000_000), f.ledger.Balance(buyer.PubKeyHash()))
	assert.Equal(t, int64(103_000_000), f.ledger.Balance(seller.PubKeyHash()))
	assert.Zero(t, locker.Held())
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, evt event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func TestRunner_Events(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	r, _, _ := newRunner(t, f, escrow.WithEvents(rec))
	ctx := context.Background()

	listed, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	_, err = r.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{Price: 3_000_000}, []ledger.Signer{buyer})
	require.NoError(t, err)
	_, err = r.Cancel(ctx, "escrow-1", ledger.Ref{}, []ledger.Signer{buyer, seller})
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	assert.Equal(t, "escrow.list", rec.events[0].Type)
	assert.Empty(t, rec.events[0].Spent)
	assert.Equal(t, listed.Escrow.UTxO.Ref.String(), rec.events[0].Ref)
	assert.Equal(t, "Task_Order", rec.events[0].Task)

	assert.Equal(t, "escrow.start", rec.events[1].Type)
	assert.Equal(t, rec.events[0].Ref, rec.events[1].Spent)
	assert.Equal(t, "started", rec.events[1].Status)

	assert.Equal(t, "escrow.cancel", rec.events[2].Type)
	assert.True(t, rec.events[2].Closed())
	for _, evt := range rec.events {
		assert.Equal(t, "escrow-1", evt.EscrowID)
	}
}

func TestRunner_EventPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{err: errors.New("broker down")}
	r, _, _ := newRunner(t, f, escrow.WithEvents(rec))

	res, err := r.List(context.Background(), "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusListed, res.Status)
	assert.Len(t, rec.events, 1)
}

func TestRunner_ListGeneratesID(t *testing.T) {
	f := newFixture(t)
	r, _, _ := newRunner(t, f)

	res, err := r.List(context.Background(), "", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EscrowID)

	_, cp, err := r.Current(context.Background(), res.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, res.Spec.ID, cp.ProposalID)
}

func TestRunner_MissingSignerStopsBeforeLedger(t *testing.T) {
	f := newFixture(t)
	var human error
	r, cl, _ := newRunner(t, f, escrow.WithOnHumanRequired(func(err error) { human = err }))
	ctx := context.Background()

	_, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	_, err = r.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{}, []ledger.Signer{buyer})
	require.NoError(t, err)
	builds, submits := cl.builds.Load(), cl.submits.Load()

	_, err = r.RunTask(ctx, "escrow-1", ledger.Ref{}, escrow.RunTaskParams{Task: "Task_Ship"}, []ledger.Signer{buyer})
	var se *eferrors.SignatureRequirementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{seller.PubKeyHash().String()}, se.Missing)

	assert.Equal(t, builds, cl.builds.Load(), "nothing was built")
	assert.Equal(t, submits, cl.submits.Load(), "nothing was submitted")
	require.Error(t, human)
	assert.ErrorAs(t, human, &se)
}

func TestRunner_StaleOutputIsRelocated(t *testing.T) {
	f := newFixture(t)
	r, _, _ := newRunner(t, f)
	ctx := context.Background()

	_, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	started, err := r.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{Price: 1_000_000}, []ledger.Signer{buyer})
	require.NoError(t, err)
	old := started.Escrow.UTxO.Ref

	_, err = r.RunTask(ctx, "escrow-1", ledger.Ref{}, escrow.RunTaskParams{Task: "Task_Refund"}, []ledger.Signer{buyer, seller})
	require.NoError(t, err)

	// The buyer still holds the pre-task reference.
	res, err := r.Cancel(ctx, "escrow-1", old, []ledger.Signer{buyer})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, escrow.StatusCancelled, res.Status)
	assert.NotEqual(t, old, res.Spec.Input.Ref)
	assert.Equal(t, int64(100_000_000), f.ledger.Balance(buyer.PubKeyHash()))
}

func TestRunner_StaleOutputFollowsSpendingTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, _ := newRunner(t, f)
	_, err := first.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	started, err := first.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{Price: 1_000_000}, []ledger.Signer{buyer})
	require.NoError(t, err)
	old := started.Escrow.UTxO.Ref

	moved, err := first.RunTask(ctx, "escrow-1", ledger.Ref{}, escrow.RunTaskParams{Task: "Task_Refund"}, []ledger.Signer{buyer, seller})
	require.NoError(t, err)

	// A second proposer with its own journal never saw the move.
	second, cl, _ := newRunner(t, f)
	res, err := second.Cancel(ctx, "escrow-1", old, []ledger.Signer{buyer})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, escrow.StatusCancelled, res.Status)
	assert.Equal(t, moved.Escrow.UTxO.Ref, res.Spec.Input.Ref)
	assert.Equal(t, int32(1), cl.submits.Load(), "the stale output was caught before submitting")
	assert.Equal(t, int64(100_000_000), f.ledger.Balance(buyer.PubKeyHash()))
}

func TestRunner_StaleOutputGivesUp(t *testing.T) {
	f := newFixture(t)
	r := escrow.NewRunner(f.engine, f.ledger, f.ledger, f.ledger, escrow.WithRetry(fastRetry))
	ctx := context.Background()

	listed, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	ref := listed.Escrow.UTxO.Ref
	_, err = r.Cancel(ctx, "escrow-1", ref, []ledger.Signer{seller})
	require.NoError(t, err)

	// The cancel left no continuing output, so there is nowhere to go.
	_, err = r.Cancel(ctx, "escrow-1", ref, []ledger.Signer{seller})
	var stale *eferrors.StaleUTxOError
	require.ErrorAs(t, err, &stale)
	assert.ErrorIs(t, err, ledger.ErrUTxOSpent)
	assert.Equal(t, ref.String(), stale.Ref)
}

func TestRunner_LedgerRejection(t *testing.T) {
	f := newFixture(t)
	r, cl, _ := newRunner(t, f)
	ctx := context.Background()

	_, err := r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)

	_, err = r.Start(ctx, "escrow-1", ledger.Ref{}, escrow.StartParams{Price: 500_000_000}, []ledger.Signer{buyer})
	var rejected *eferrors.LedgerRejectionError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, eferrors.CategoryPermanent, eferrors.Categorize(err))
	assert.Equal(t, int32(2), cl.submits.Load(), "rejections are not retried")
}

func TestRunner_NoJournal(t *testing.T) {
	f := newFixture(t)
	r := escrow.NewRunner(f.engine, f.ledger, f.ledger, f.ledger)

	_, err := r.Start(context.Background(), "escrow-1", ledger.Ref{}, escrow.StartParams{}, []ledger.Signer{buyer})
	assert.ErrorIs(t, err, escrow.ErrNoJournal)

	_, _, err = r.Current(context.Background(), "escrow-1")
	assert.ErrorIs(t, err, escrow.ErrNoJournal)
}

func TestRunner_UnknownEscrow(t *testing.T) {
	f := newFixture(t)
	r, _, _ := newRunner(t, f)

	_, _, err := r.Current(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRunner_SQLiteJournalAndRedisLock(t *testing.T) {
	f := newFixture(t)

	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := lock.NewRedisLocker(client, "escrowflow:", lock.WithPollInterval(5*time.Millisecond))

	r := escrow.NewRunner(f.engine, f.ledger, f.ledger, f.ledger,
		escrow.WithJournal(store),
		escrow.WithLocker(locker, time.Minute),
		escrow.WithRetry(fastRetry),
	)
	ctx := context.Background()

	_, err = r.List(ctx, "escrow-1", f.listParams(), []ledger.Signer{seller})
	require.NoError(t, err)
	_, err = r.Cancel(ctx, "escrow-1", ledger.Ref{}, []ledger.Signer{seller})
	require.NoError(t, err)

	assert.False(t, mr.Exists(locker.Key("escrow-1")), "lock released")

	escrows, err := store.Escrows()
	require.NoError(t, err)
	assert.Equal(t, []string{"escrow-1"}, escrows)

	_, cp, err := r.Current(ctx, "escrow-1")
	require.NoError(t, err)
	assert.Equal(t, "cancel", cp.Transition)
	assert.True(t, cp.Closed())
}

func TestRunner_LockUnavailable(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	r, cl, _ := newRunner(t, f, escrow.WithLocker(lock.NewRedisLocker(client, "escrowflow:"), time.Second))

	_, err := r.List(context.Background(), "escrow-1", f.listParams(), []ledger.Signer{seller})
	assert.ErrorIs(t, err, lock.ErrLockAcquire)
	assert.Zero(t, cl.submits.Load())
}
