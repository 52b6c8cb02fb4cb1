package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// Transactions produced by the in-memory Builder are a CBOR envelope
// holding the body bytes and the witnesses collected so far. The
// transaction hash is blake2b-256 of the body bytes, so adding witnesses
// does not change it.

type txEnvelope struct {
	Body      []byte    `cbor:"0,keyasint"`
	Witnesses []witness `cbor:"1,keyasint,omitempty"`
}

type witness struct {
	Key       []byte `cbor:"0,keyasint"`
	Signature []byte `cbor:"1,keyasint"`
}

type txInput struct {
	TxHash string `cbor:"0,keyasint"`
	Index  uint32 `cbor:"1,keyasint"`
}

type txOutput struct {
	Address  string `cbor:"0,keyasint"`
	Lovelace int64  `cbor:"1,keyasint"`
	Datum    []byte `cbor:"2,keyasint,omitempty"`
}

type txPayout struct {
	To       []byte `cbor:"0,keyasint"`
	Lovelace int64  `cbor:"1,keyasint"`
}

type txBody struct {
	ID         string     `cbor:"0,keyasint"`
	Transition string     `cbor:"1,keyasint"`
	Input      *txInput   `cbor:"2,keyasint,omitempty"`
	Redeemer   []byte     `cbor:"3,keyasint,omitempty"`
	Output     *txOutput  `cbor:"4,keyasint,omitempty"`
	Payouts    []txPayout `cbor:"5,keyasint,omitempty"`
	Funder     []byte     `cbor:"6,keyasint,omitempty"`
	Deposit    int64      `cbor:"7,keyasint,omitempty"`
	Signers    [][]byte   `cbor:"8,keyasint,omitempty"`
	AnySigner  bool       `cbor:"9,keyasint,omitempty"`
}

var txEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func bodyFromSpec(spec *TxSpec) txBody {
	b := txBody{
		ID:         spec.ID,
		Transition: spec.Transition,
		Redeemer:   spec.Redeemer,
		Deposit:    spec.Deposit,
		AnySigner:  spec.AnySigner,
	}
	if spec.Input != nil {
		b.Input = &txInput{TxHash: spec.Input.Ref.TxHash, Index: spec.Input.Ref.Index}
	}
	if spec.Output != nil {
		b.Output = &txOutput{Address: spec.Output.Address, Lovelace: spec.Output.Lovelace, Datum: spec.Output.Datum}
	}
	for _, p := range spec.Payouts {
		b.Payouts = append(b.Payouts, txPayout{To: p.To[:], Lovelace: p.Lovelace})
	}
	if !spec.Funder.IsZero() {
		b.Funder = spec.Funder[:]
	}
	for _, s := range spec.RequiredSigners {
		b.Signers = append(b.Signers, s[:])
	}
	return b
}

func encodeEnvelope(env txEnvelope) ([]byte, error) {
	return txEncMode.Marshal(env)
}

func decodeEnvelope(tx []byte) (txEnvelope, txBody, error) {
	var env txEnvelope
	if err := cbor.Unmarshal(tx, &env); err != nil {
		return txEnvelope{}, txBody{}, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	var body txBody
	if err := cbor.Unmarshal(env.Body, &body); err != nil {
		return txEnvelope{}, txBody{}, fmt.Errorf("%w: body: %v", ErrMalformedTx, err)
	}
	return env, body, nil
}

// TxHash returns the hash of a transaction produced by the in-memory
// Builder.
func TxHash(tx []byte) (string, error) {
	env, _, err := decodeEnvelope(tx)
	if err != nil {
		return "", err
	}
	return bodyHash(env.Body), nil
}

func bodyHash(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func toKeyHash(b []byte) (datum.PubKeyHash, error) {
	var pkh datum.PubKeyHash
	if len(b) != len(pkh) {
		return pkh, fmt.Errorf("%w: key hash is %d bytes", ErrMalformedTx, len(b))
	}
	copy(pkh[:], b)
	return pkh, nil
}

// witnessed returns the key hashes that signed env.
func witnessed(env txEnvelope) map[datum.PubKeyHash]bool {
	out := make(map[datum.PubKeyHash]bool, len(env.Witnesses))
	for _, w := range env.Witnesses {
		if pkh, err := toKeyHash(w.Key); err == nil {
			out[pkh] = true
		}
	}
	return out
}

// missingSigners lists required signers without a witness. When anySigner
// is set and at least one required signer witnessed, nothing is missing.
func missingSigners(body txBody, have map[datum.PubKeyHash]bool) ([]datum.PubKeyHash, error) {
	var missing []datum.PubKeyHash
	for _, raw := range body.Signers {
		pkh, err := toKeyHash(raw)
		if err != nil {
			return nil, err
		}
		if have[pkh] {
			if body.AnySigner {
				return nil, nil
			}
			continue
		}
		missing = append(missing, pkh)
	}
	return missing, nil
}
