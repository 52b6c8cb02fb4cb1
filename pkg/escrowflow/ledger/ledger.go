// Package ledger defines the ledger capabilities the escrow layer consumes
// and an in-memory ledger that implements them.
//
// The escrow engine never talks to a chain directly. It produces TxSpecs;
// a Builder turns a TxSpec into transaction bytes, Signers add witnesses,
// and a Submitter hands the result to the ledger. Fetchers resolve escrow
// outputs by reference.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// Sentinel errors reported by ledger implementations.
var (
	// ErrUTxONotFound indicates no output exists at the reference.
	ErrUTxONotFound = errors.New("utxo not found")

	// ErrUTxOSpent indicates the output was consumed by another transaction.
	ErrUTxOSpent = errors.New("utxo already spent")

	// ErrMissingSigner indicates a required signer did not witness the
	// transaction.
	ErrMissingSigner = errors.New("missing required signer")

	// ErrUnbalanced indicates inputs and outputs do not add up.
	ErrUnbalanced = errors.New("transaction is unbalanced")

	// ErrInsufficientFunds indicates the funding party cannot cover the deposit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMalformedTx indicates transaction bytes could not be decoded.
	ErrMalformedTx = errors.New("malformed transaction")

	// ErrInvalidRef indicates a reference string is not "txhash#index".
	ErrInvalidRef = errors.New("invalid output reference")
)

// SpentError reports an output consumed by another transaction. It
// matches ErrUTxOSpent.
type SpentError struct {
	Ref Ref
	// By is the hash of the spending transaction. Empty when the ledger
	// does not say.
	By string
}

// Error implements the error interface.
func (e *SpentError) Error() string {
	if e.By == "" {
		return fmt.Sprintf("%v: %s", ErrUTxOSpent, e.Ref)
	}
	return fmt.Sprintf("%v: %s by %s", ErrUTxOSpent, e.Ref, e.By)
}

// Is reports whether target is ErrUTxOSpent.
func (e *SpentError) Is(target error) bool {
	return target == ErrUTxOSpent
}

// SpentBy returns the hash of the transaction that consumed the output err
// is about, when err carries one.
func SpentBy(err error) (string, bool) {
	var spent *SpentError
	if errors.As(err, &spent) && spent.By != "" {
		return spent.By, true
	}
	return "", false
}

// Ref identifies a transaction output.
type Ref struct {
	TxHash string
	Index  uint32
}

// ParseRef parses "txhash#index". The hash must be 64 hex characters.
func ParseRef(s string) (Ref, error) {
	hash, idx, ok := strings.Cut(s, "#")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q has no #index", ErrInvalidRef, s)
	}
	if len(hash) != 64 || strings.Trim(strings.ToLower(hash), "0123456789abcdef") != "" {
		return Ref{}, fmt.Errorf("%w: %q is not a 32 byte hex hash", ErrInvalidRef, hash)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: index %q: %v", ErrInvalidRef, idx, err)
	}
	return Ref{TxHash: strings.ToLower(hash), Index: uint32(n)}, nil
}

// String renders the reference as "txhash#index".
func (r Ref) String() string {
	return r.TxHash + "#" + strconv.FormatUint(uint64(r.Index), 10)
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.TxHash == "" }

// UTxO is an unspent output.
type UTxO struct {
	Ref      Ref
	Address  string
	Lovelace int64
	// Datum is the inline datum CBOR, empty for key-locked outputs.
	Datum []byte
}

// Output is an output a transaction creates at the script address.
type Output struct {
	Address  string
	Lovelace int64
	Datum    []byte
}

// Payout sends lovelace to a party's key-locked address.
type Payout struct {
	To       datum.PubKeyHash
	Lovelace int64
}

// TxSpec is a declarative transaction: what to spend, what to create, and
// who must sign. It carries no fees or collateral; a Builder adds those.
type TxSpec struct {
	// ID uniquely identifies the proposal.
	ID string
	// Transition names the escrow transition, e.g. "run_task".
	Transition string
	// Input is the escrow output being spent. Nil when listing.
	Input *UTxO
	// Redeemer is the CBOR redeemer for Input.
	Redeemer []byte
	// Output is the continuing escrow output. Nil when the escrow closes.
	Output *Output
	// Payouts are released to parties when the escrow closes.
	Payouts []Payout
	// Funder pays Deposit from their own funds.
	Funder  datum.PubKeyHash
	Deposit int64
	// RequiredSigners must all witness the transaction unless AnySigner is
	// set, in which case one of them is enough.
	RequiredSigners []datum.PubKeyHash
	AnySigner       bool
}

// Balanced reports whether inputs plus deposit equal outputs plus payouts.
func (s *TxSpec) Balanced() bool {
	var in, out int64
	if s.Input != nil {
		in = s.Input.Lovelace
	}
	in += s.Deposit
	if s.Output != nil {
		out = s.Output.Lovelace
	}
	for _, p := range s.Payouts {
		out += p.Lovelace
	}
	return in == out
}

// Fetcher resolves outputs.
type Fetcher interface {
	// FetchUTxOs returns the unspent outputs created by a transaction.
	FetchUTxOs(ctx context.Context, txHash string) ([]UTxO, error)
	// FetchUTxO returns one output. Returns ErrUTxONotFound or ErrUTxOSpent
	// when it is unavailable.
	FetchUTxO(ctx context.Context, ref Ref) (UTxO, error)
}

// Builder turns a TxSpec into unsigned transaction bytes.
type Builder interface {
	Build(ctx context.Context, spec *TxSpec) ([]byte, error)
}

// Signer witnesses transactions with one key.
type Signer interface {
	PubKeyHash() datum.PubKeyHash
	// Sign returns tx with this signer's witness added. With partial set,
	// other required witnesses may still be missing.
	Sign(ctx context.Context, tx []byte, partial bool) ([]byte, error)
}

// Submitter hands a signed transaction to the ledger and returns its hash.
type Submitter interface {
	Submit(ctx context.Context, tx []byte) (string, error)
}

// Wallet signs and submits.
type Wallet interface {
	Signer
	Submitter
}

type wallet struct {
	Signer
	Submitter
}

// NewWallet pairs a signer with a submitter.
func NewWallet(s Signer, sub Submitter) Wallet {
	return wallet{Signer: s, Submitter: sub}
}
