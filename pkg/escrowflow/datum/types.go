package datum

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// PubKeyHashSize is the length of a verification key hash.
const PubKeyHashSize = 28

// ProcessHashSize is the length of a compiled-workflow identity hash.
const ProcessHashSize = 32

// PubKeyHash identifies a party by the blake2b-224 hash of its verification key.
type PubKeyHash [PubKeyHashSize]byte

// ParsePubKeyHash decodes a hex-encoded key hash.
func ParsePubKeyHash(s string) (PubKeyHash, error) {
	var p PubKeyHash
	if err := decodeFixedHex(s, p[:]); err != nil {
		return PubKeyHash{}, fmt.Errorf("parse pub key hash: %w", err)
	}
	return p, nil
}

// KeyHash returns the blake2b-224 hash of a verification key.
func KeyHash(verificationKey []byte) PubKeyHash {
	h, _ := blake2b.New(PubKeyHashSize, nil) // only fails for invalid sizes or keys
	h.Write(verificationKey)
	var p PubKeyHash
	copy(p[:], h.Sum(nil))
	return p
}

// String returns the hex encoding.
func (p PubKeyHash) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the hash is unset.
func (p PubKeyHash) IsZero() bool { return p == PubKeyHash{} }

// MarshalText implements encoding.TextMarshaler.
func (p PubKeyHash) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PubKeyHash) UnmarshalText(b []byte) error {
	v, err := ParsePubKeyHash(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ProcessHash identifies which compiled workflow an escrow instance executes.
type ProcessHash [ProcessHashSize]byte

// ParseProcessHash decodes a hex-encoded process hash.
func ParseProcessHash(s string) (ProcessHash, error) {
	var p ProcessHash
	if err := decodeFixedHex(s, p[:]); err != nil {
		return ProcessHash{}, fmt.Errorf("parse process hash: %w", err)
	}
	return p, nil
}

// HashProcess computes the process hash of a BPMN document: blake2b-256 over
// the Plutus data encoding of the raw document bytes.
func HashProcess(document []byte) ProcessHash {
	encoded, err := EncodeData(Bytes(document))
	if err != nil {
		// Byte strings always encode.
		panic(fmt.Sprintf("datum: encode process document: %v", err))
	}
	return ProcessHash(blake2b.Sum256(encoded))
}

// DataHash returns the blake2b-256 hash of the encoding of d.
func DataHash(d Data) ([ProcessHashSize]byte, error) {
	encoded, err := EncodeData(d)
	if err != nil {
		return [ProcessHashSize]byte{}, err
	}
	return blake2b.Sum256(encoded), nil
}

// String returns the hex encoding.
func (p ProcessHash) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the hash is unset.
func (p ProcessHash) IsZero() bool { return p == ProcessHash{} }

// MarshalText implements encoding.TextMarshaler.
func (p ProcessHash) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProcessHash) UnmarshalText(b []byte) error {
	v, err := ParseProcessHash(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ArtifactRef points at the deliverable of the most recently executed task,
// typically the UTF-8 bytes of a content identifier.
type ArtifactRef []byte

// ArtifactRefFromCID wraps a content identifier.
func ArtifactRefFromCID(cid string) ArtifactRef { return ArtifactRef(cid) }

// String returns the reference as text.
func (a ArtifactRef) String() string { return string(a) }

func decodeFixedHex(s string, dst []byte) error {
	if hex.DecodedLen(len(s)) != len(dst) {
		return fmt.Errorf("want %d hex-encoded bytes, got %d characters", len(dst), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}
