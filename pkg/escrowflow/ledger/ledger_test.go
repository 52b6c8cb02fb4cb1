package ledger

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

const scriptAddr = "addr_test1escrow"

var (
	alice = KeySignerFromSeed("alice")
	bob   = KeySignerFromSeed("bob")
)

func TestParseRef(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		input   string
		want    Ref
		wantErr bool
	}{
		{"valid", hash + "#0", Ref{TxHash: hash, Index: 0}, false},
		{"uppercase hash is normalized", strings.ToUpper(hash) + "#12", Ref{TxHash: hash, Index: 12}, false},
		{"missing index", hash, Ref{}, true},
		{"short hash", "abcd#0", Ref{}, true},
		{"non hex hash", strings.Repeat("zz", 32) + "#0", Ref{}, true},
		{"negative index", hash + "#-1", Ref{}, true},
		{"index overflow", hash + "#4294967296", Ref{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.ToLower(tt.input), got.String())
		})
	}
}

func TestTxSpec_Balanced(t *testing.T) {
	spec := &TxSpec{
		Input:   &UTxO{Lovelace: 5},
		Deposit: 3,
		Output:  &Output{Lovelace: 6},
		Payouts: []Payout{{Lovelace: 2}},
	}
	assert.True(t, spec.Balanced())

	spec.Deposit = 4
	assert.False(t, spec.Balanced())
}

// list puts an escrow output on the ledger funded by alice.
func list(t *testing.T, m *Memory, lovelace int64) UTxO {
	t.Helper()
	ctx := context.Background()

	tx, err := m.Build(ctx, &TxSpec{
		ID:              "list",
		Transition:      "list",
		Output:          &Output{Lovelace: lovelace, Datum: []byte{0xd8, 0x79, 0x80}},
		Funder:          alice.PubKeyHash(),
		Deposit:         lovelace,
		RequiredSigners: []datum.PubKeyHash{alice.PubKeyHash()},
	})
	require.NoError(t, err)
	tx, err = alice.Sign(ctx, tx, false)
	require.NoError(t, err)
	hash, err := m.Submit(ctx, tx)
	require.NoError(t, err)

	utxos, err := m.FetchUTxOs(ctx, hash)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	return utxos[0]
}

func TestMemory_ListAndFetch(t *testing.T) {
	m := NewMemory(scriptAddr)
	m.Fund(alice.PubKeyHash(), 10_000_000)

	u := list(t, m, 2_000_000)
	assert.Equal(t, scriptAddr, u.Address)
	assert.Equal(t, int64(2_000_000), u.Lovelace)
	assert.Equal(t, []byte{0xd8, 0x79, 0x80}, u.Datum)
	assert.Equal(t, uint32(0), u.Ref.Index)
	assert.Equal(t, int64(8_000_000), m.Balance(alice.PubKeyHash()))

	got, err := m.FetchUTxO(context.Background(), u.Ref)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	assert.Equal(t, []UTxO{u}, m.UTxOsAt(scriptAddr))
}

func TestMemory_SpendRules(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Memory, UTxO) {
		m := NewMemory(scriptAddr)
		m.Fund(alice.PubKeyHash(), 10_000_000)
		m.Fund(bob.PubKeyHash(), 10_000_000)
		return m, list(t, m, 2_000_000)
	}

	closeSpec := func(u UTxO) *TxSpec {
		return &TxSpec{
			ID:              "close",
			Transition:      "compensate",
			Input:           &u,
			Payouts:         []Payout{{To: alice.PubKeyHash(), Lovelace: u.Lovelace}},
			RequiredSigners: []datum.PubKeyHash{alice.PubKeyHash(), bob.PubKeyHash()},
		}
	}

	t.Run("both signers pay out and spend", func(t *testing.T) {
		m, u := setup(t)
		tx, err := m.Build(ctx, closeSpec(u))
		require.NoError(t, err)

		tx, err = alice.Sign(ctx, tx, true)
		require.NoError(t, err)
		tx, err = bob.Sign(ctx, tx, false)
		require.NoError(t, err)

		hash, err := m.Submit(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(10_000_000), m.Balance(alice.PubKeyHash()))

		_, err = m.FetchUTxO(ctx, u.Ref)
		assert.ErrorIs(t, err, ErrUTxOSpent)
		var spent *SpentError
		require.ErrorAs(t, err, &spent)
		assert.Equal(t, u.Ref, spent.Ref)
		by, ok := SpentBy(err)
		assert.True(t, ok)
		assert.Equal(t, hash, by)

		again, err := m.Submit(ctx, tx)
		require.NoError(t, err, "resubmission is idempotent")
		assert.Equal(t, hash, again)

		outputs, err := m.FetchUTxOs(ctx, hash)
		require.NoError(t, err)
		assert.Empty(t, outputs)
	})

	t.Run("non partial sign requires all signers", func(t *testing.T) {
		m, u := setup(t)
		tx, err := m.Build(ctx, closeSpec(u))
		require.NoError(t, err)

		_, err = alice.Sign(ctx, tx, false)
		assert.ErrorIs(t, err, ErrMissingSigner)
	})

	t.Run("submit rejects missing witness", func(t *testing.T) {
		m, u := setup(t)
		tx, err := m.Build(ctx, closeSpec(u))
		require.NoError(t, err)
		tx, err = alice.Sign(ctx, tx, true)
		require.NoError(t, err)

		_, err = m.Submit(ctx, tx)
		assert.ErrorIs(t, err, ErrMissingSigner)
		_, err = m.FetchUTxO(ctx, u.Ref)
		assert.NoError(t, err, "rejected transaction must not spend")
	})

	t.Run("any signer", func(t *testing.T) {
		m, u := setup(t)
		spec := closeSpec(u)
		spec.AnySigner = true
		tx, err := m.Build(ctx, spec)
		require.NoError(t, err)
		tx, err = bob.Sign(ctx, tx, false)
		require.NoError(t, err)

		_, err = m.Submit(ctx, tx)
		assert.NoError(t, err)
	})

	t.Run("double spend", func(t *testing.T) {
		m, u := setup(t)
		first := closeSpec(u)
		second := closeSpec(u)
		second.ID = "close-again"

		for i, spec := range []*TxSpec{first, second} {
			tx, err := m.Build(ctx, spec)
			require.NoError(t, err)
			tx, _ = alice.Sign(ctx, tx, true)
			tx, _ = bob.Sign(ctx, tx, true)
			_, err = m.Submit(ctx, tx)
			if i == 0 {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUTxOSpent)
			}
		}
	})

	t.Run("unknown input", func(t *testing.T) {
		m, u := setup(t)
		spec := closeSpec(u)
		spec.Input.Ref.Index = 7
		tx, err := m.Build(ctx, spec)
		require.NoError(t, err)
		tx, _ = alice.Sign(ctx, tx, true)
		tx, _ = bob.Sign(ctx, tx, true)

		_, err = m.Submit(ctx, tx)
		assert.ErrorIs(t, err, ErrUTxONotFound)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		m := NewMemory(scriptAddr)
		m.Fund(alice.PubKeyHash(), 1)
		tx, err := m.Build(ctx, &TxSpec{
			ID:      "list",
			Output:  &Output{Lovelace: 5},
			Funder:  alice.PubKeyHash(),
			Deposit: 5,
		})
		require.NoError(t, err)

		_, err = m.Submit(ctx, tx)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("unbalanced spec is refused at build time", func(t *testing.T) {
		m, u := setup(t)
		spec := closeSpec(u)
		spec.Payouts[0].Lovelace++

		_, err := m.Build(ctx, spec)
		assert.ErrorIs(t, err, ErrUnbalanced)
	})
}

func TestMemory_Malformed(t *testing.T) {
	m := NewMemory(scriptAddr)

	_, err := m.Submit(context.Background(), []byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrMalformedTx)

	_, err = alice.Sign(context.Background(), []byte("junk"), true)
	assert.ErrorIs(t, err, ErrMalformedTx)

	_, err = m.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedTx)
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory(scriptAddr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FetchUTxO(ctx, Ref{TxHash: strings.Repeat("00", 32)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeySigner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(scriptAddr)

	assert.Equal(t, datum.KeyHash(mustSeedKey("alice")), alice.PubKeyHash())
	assert.NotEqual(t, alice.PubKeyHash(), bob.PubKeyHash())

	tx, err := m.Build(ctx, &TxSpec{ID: "x", RequiredSigners: []datum.PubKeyHash{alice.PubKeyHash()}})
	require.NoError(t, err)
	before, err := TxHash(tx)
	require.NoError(t, err)

	once, err := alice.Sign(ctx, tx, false)
	require.NoError(t, err)
	twice, err := alice.Sign(ctx, once, false)
	require.NoError(t, err)
	assert.Equal(t, once, twice, "signing twice adds one witness")

	after, err := TxHash(twice)
	require.NoError(t, err)
	assert.Equal(t, before, after, "witnesses do not change the hash")
}

func TestNewWallet(t *testing.T) {
	m := NewMemory(scriptAddr)
	w := NewWallet(alice, m)
	assert.Equal(t, alice.PubKeyHash(), w.PubKeyHash())
}

func mustSeedKey(seed string) []byte {
	sum := blake2b.Sum256([]byte(seed))
	return sum[:]
}

func TestSpentBy(t *testing.T) {
	ref := Ref{TxHash: strings.Repeat("ab", 32), Index: 1}
	tests := []struct {
		name string
		err  error
		want string
		ok   bool
	}{
		{"wrapped", fmt.Errorf("load escrow: %w", &SpentError{Ref: ref, By: "cafe"}), "cafe", true},
		{"unknown spender", &SpentError{Ref: ref}, "", false},
		{"sentinel only", ErrUTxOSpent, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SpentBy(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	err := &SpentError{Ref: ref, By: "cafe"}
	assert.ErrorIs(t, err, ErrUTxOSpent)
	assert.Contains(t, err.Error(), "by cafe")
	assert.NotContains(t, (&SpentError{Ref: ref}).Error(), " by ")
}
