package ledger

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// Memory is an in-memory ledger. It tracks outputs created by escrow
// transactions and a lovelace balance per party, and enforces the rules a
// real ledger would reject on: unspent inputs, required signers, funding
// and balance. It does not run the escrow validator.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	address  string
	utxos    map[Ref]UTxO
	spent    map[Ref]string
	balances map[datum.PubKeyHash]int64
	outputs  map[string][]Ref
}

var (
	_ Fetcher   = (*Memory)(nil)
	_ Builder   = (*Memory)(nil)
	_ Submitter = (*Memory)(nil)
)

// NewMemory creates an empty ledger. Outputs without an address are placed
// at scriptAddress.
func NewMemory(scriptAddress string) *Memory {
	return &Memory{
		address:  scriptAddress,
		utxos:    make(map[Ref]UTxO),
		spent:    make(map[Ref]string),
		balances: make(map[datum.PubKeyHash]int64),
		outputs:  make(map[string][]Ref),
	}
}

// ScriptAddress returns the default output address.
func (m *Memory) ScriptAddress() string { return m.address }

// Fund credits a party.
func (m *Memory) Fund(pkh datum.PubKeyHash, lovelace int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[pkh] += lovelace
}

// Balance returns a party's key-locked lovelace.
func (m *Memory) Balance(pkh datum.PubKeyHash) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[pkh]
}

// UTxOsAt returns the unspent outputs at an address, ordered by reference.
func (m *Memory) UTxOsAt(address string) []UTxO {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UTxO
	for _, u := range m.utxos {
		if u.Address == address {
			out = append(out, cloneUTxO(u))
		}
	}
	slices.SortFunc(out, func(a, b UTxO) int {
		if c := strings.Compare(a.Ref.TxHash, b.Ref.TxHash); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref.Index, b.Ref.Index)
	})
	return out
}

// FetchUTxOs implements Fetcher.
func (m *Memory) FetchUTxOs(ctx context.Context, txHash string) ([]UTxO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs, ok := m.outputs[strings.ToLower(txHash)]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrUTxONotFound, txHash)
	}
	out := make([]UTxO, 0, len(refs))
	for _, ref := range refs {
		if u, ok := m.utxos[ref]; ok {
			out = append(out, cloneUTxO(u))
		}
	}
	return out, nil
}

// FetchUTxO implements Fetcher.
func (m *Memory) FetchUTxO(ctx context.Context, ref Ref) (UTxO, error) {
	if err := ctx.Err(); err != nil {
		return UTxO{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(ref)
}

func (m *Memory) lookupLocked(ref Ref) (UTxO, error) {
	if by, ok := m.spent[ref]; ok {
		return UTxO{}, &SpentError{Ref: ref, By: by}
	}
	u, ok := m.utxos[ref]
	if !ok {
		return UTxO{}, fmt.Errorf("%w: %s", ErrUTxONotFound, ref)
	}
	return cloneUTxO(u), nil
}

// Build implements Builder. The result carries no witnesses.
func (m *Memory) Build(ctx context.Context, spec *TxSpec) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spec", ErrMalformedTx)
	}
	if !spec.Balanced() {
		return nil, fmt.Errorf("%w: %s", ErrUnbalanced, spec.Transition)
	}
	body, err := txEncMode.Marshal(bodyFromSpec(spec))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return encodeEnvelope(txEnvelope{Body: body})
}

// Submit implements Submitter. Resubmitting an applied transaction returns
// its hash again.
func (m *Memory) Submit(ctx context.Context, tx []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	env, body, err := decodeEnvelope(tx)
	if err != nil {
		return "", err
	}
	hash := bodyHash(env.Body)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outputs[hash]; ok {
		return hash, nil
	}

	var input UTxO
	if body.Input != nil {
		input, err = m.lookupLocked(Ref{TxHash: body.Input.TxHash, Index: body.Input.Index})
		if err != nil {
			return "", err
		}
	}

	missing, err := missingSigners(body, witnessed(env))
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingSigner, missing[0])
	}

	var funder datum.PubKeyHash
	if body.Deposit > 0 {
		if funder, err = toKeyHash(body.Funder); err != nil {
			return "", err
		}
		if m.balances[funder] < body.Deposit {
			return "", fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, funder, m.balances[funder], body.Deposit)
		}
	}

	in := input.Lovelace + body.Deposit
	out := int64(0)
	if body.Output != nil {
		out += body.Output.Lovelace
	}
	payouts := make([]Payout, 0, len(body.Payouts))
	for _, p := range body.Payouts {
		to, err := toKeyHash(p.To)
		if err != nil {
			return "", err
		}
		payouts = append(payouts, Payout{To: to, Lovelace: p.Lovelace})
		out += p.Lovelace
	}
	if in != out {
		return "", fmt.Errorf("%w: in %d, out %d", ErrUnbalanced, in, out)
	}

	// Apply.
	if body.Input != nil {
		delete(m.utxos, input.Ref)
		m.spent[input.Ref] = hash
	}
	if body.Deposit > 0 {
		m.balances[funder] -= body.Deposit
	}
	for _, p := range payouts {
		m.balances[p.To] += p.Lovelace
	}
	m.outputs[hash] = nil
	if body.Output != nil {
		addr := body.Output.Address
		if addr == "" {
			addr = m.address
		}
		ref := Ref{TxHash: hash, Index: 0}
		m.utxos[ref] = UTxO{
			Ref:      ref,
			Address:  addr,
			Lovelace: body.Output.Lovelace,
			Datum:    bytes.Clone(body.Output.Datum),
		}
		m.outputs[hash] = []Ref{ref}
	}

	return hash, nil
}

func cloneUTxO(u UTxO) UTxO {
	u.Datum = bytes.Clone(u.Datum)
	return u
}
