package ledger

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// KeySigner witnesses transactions built by the in-memory Builder. The
// witness is a keyed blake2b MAC over the body; it stands in for a real
// signature scheme.
type KeySigner struct {
	key []byte
	pkh datum.PubKeyHash
}

var _ Signer = (*KeySigner)(nil)

// NewKeySigner creates a signer for a verification key.
func NewKeySigner(key []byte) *KeySigner {
	return &KeySigner{key: bytes.Clone(key), pkh: datum.KeyHash(key)}
}

// KeySignerFromSeed derives a key from a human-readable seed, for tests and
// simulations.
func KeySignerFromSeed(seed string) *KeySigner {
	key := blake2b.Sum256([]byte(seed))
	return NewKeySigner(key[:])
}

// PubKeyHash returns the blake2b-224 hash of the key.
func (s *KeySigner) PubKeyHash() datum.PubKeyHash { return s.pkh }

// Sign adds this signer's witness. Signing twice is a no-op. Without
// partial, every required signer must have witnessed once this witness is
// added.
func (s *KeySigner) Sign(_ context.Context, tx []byte, partial bool) ([]byte, error) {
	env, body, err := decodeEnvelope(tx)
	if err != nil {
		return nil, err
	}

	have := witnessed(env)
	if !have[s.pkh] {
		mac, err := blake2b.New256(s.key)
		if err != nil {
			return nil, err
		}
		mac.Write(env.Body)
		env.Witnesses = append(env.Witnesses, witness{Key: s.pkh[:], Signature: mac.Sum(nil)})
		have[s.pkh] = true
	}

	if !partial {
		missing, err := missingSigners(body, have)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, missing[0])
		}
	}

	return encodeEnvelope(env)
}
