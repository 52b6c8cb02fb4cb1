package datum

import (
	"bytes"
	"fmt"
)

// Kind discriminates the two escrow datum shapes. The value is also the
// on-chain constructor index.
type Kind uint64

const (
	// KindInit is an escrow listed by the seller and not yet accepted.
	KindInit Kind = 0
	// KindActive is an escrow accepted by the buyer.
	KindActive Kind = 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInit:
		return "InitEscrow"
	case KindActive:
		return "ActiveEscrow"
	default:
		return fmt.Sprintf("Kind(%d)", uint64(k))
	}
}

// Datum is the escrow state attached to the script output.
type Datum interface {
	Kind() Kind
	// Common returns the fields shared by both shapes.
	Common() Terms
	// Position returns the current workflow position.
	Position() NodeState
	ToData() Data
}

// Terms are the fields fixed at listing time. They never change for the
// lifetime of an escrow instance.
type Terms struct {
	Buyer         PubKeyHash
	Seller        PubKeyHash
	ProcessHash   ProcessHash
	ProceedAmount int64
}

// InitEscrow is the datum of a listed escrow.
type InitEscrow struct {
	Buyer         PubKeyHash
	Seller        PubKeyHash
	NodeState     NodeState
	ProcessHash   ProcessHash
	ProceedAmount int64
}

// ActiveEscrow is the datum of an accepted escrow.
type ActiveEscrow struct {
	Buyer         PubKeyHash
	Seller        PubKeyHash
	NodeState     NodeState
	ArtifactRef   ArtifactRef
	ProcessHash   ProcessHash
	ProceedAmount int64
}

var (
	_ Datum = InitEscrow{}
	_ Datum = ActiveEscrow{}
)

// Kind implements Datum.
func (InitEscrow) Kind() Kind { return KindInit }

// Common implements Datum.
func (d InitEscrow) Common() Terms {
	return Terms{Buyer: d.Buyer, Seller: d.Seller, ProcessHash: d.ProcessHash, ProceedAmount: d.ProceedAmount}
}

// Position implements Datum.
func (d InitEscrow) Position() NodeState { return d.NodeState }

// ToData implements Datum: Constr0[buyer, seller, nodeState, processHash, proceed].
func (d InitEscrow) ToData() Data {
	return NewConstr(uint64(KindInit),
		Bytes(d.Buyer[:]),
		Bytes(d.Seller[:]),
		d.NodeState.ToData(),
		Bytes(d.ProcessHash[:]),
		NewInt(d.ProceedAmount),
	)
}

// Kind implements Datum.
func (ActiveEscrow) Kind() Kind { return KindActive }

// Common implements Datum.
func (d ActiveEscrow) Common() Terms {
	return Terms{Buyer: d.Buyer, Seller: d.Seller, ProcessHash: d.ProcessHash, ProceedAmount: d.ProceedAmount}
}

// Position implements Datum.
func (d ActiveEscrow) Position() NodeState { return d.NodeState }

// ToData implements Datum:
// Constr1[buyer, seller, nodeState, artifactRef, processHash, proceed].
func (d ActiveEscrow) ToData() Data {
	return NewConstr(uint64(KindActive),
		Bytes(d.Buyer[:]),
		Bytes(d.Seller[:]),
		d.NodeState.ToData(),
		Bytes(d.ArtifactRef),
		Bytes(d.ProcessHash[:]),
		NewInt(d.ProceedAmount),
	)
}

// Equal reports whether two active datums are identical.
func (d ActiveEscrow) Equal(o ActiveEscrow) bool {
	return d.Buyer == o.Buyer && d.Seller == o.Seller &&
		d.NodeState.Equal(o.NodeState) &&
		bytes.Equal(d.ArtifactRef, o.ArtifactRef) &&
		d.ProcessHash == o.ProcessHash &&
		d.ProceedAmount == o.ProceedAmount
}

// InitParams describes a new listing.
type InitParams struct {
	Buyer         PubKeyHash
	Seller        PubKeyHash
	NodeState     NodeState
	ProcessHash   ProcessHash
	ProceedAmount int64
}

// NewInitDatum validates listing parameters and builds the InitEscrow datum.
func NewInitDatum(p InitParams) (InitEscrow, error) {
	if err := validateTerms(p.Buyer, p.Seller, p.ProcessHash, p.ProceedAmount); err != nil {
		return InitEscrow{}, err
	}
	ns, err := NewNodeState(p.NodeState.Current, p.NodeState.Incoming, p.NodeState.Outgoing)
	if err != nil {
		return InitEscrow{}, err
	}
	return InitEscrow{
		Buyer:         p.Buyer,
		Seller:        p.Seller,
		NodeState:     ns,
		ProcessHash:   p.ProcessHash,
		ProceedAmount: p.ProceedAmount,
	}, nil
}

func validateTerms(buyer, seller PubKeyHash, process ProcessHash, proceed int64) error {
	switch {
	case buyer.IsZero():
		return fmt.Errorf("%w: buyer is unset", ErrInvalidDatum)
	case seller.IsZero():
		return fmt.Errorf("%w: seller is unset", ErrInvalidDatum)
	case buyer == seller:
		return fmt.Errorf("%w: buyer and seller are the same party", ErrInvalidDatum)
	case process.IsZero():
		return fmt.Errorf("%w: process hash is unset", ErrInvalidDatum)
	case proceed < 0:
		return fmt.Errorf("%w: proceed amount %d is negative", ErrInvalidDatum, proceed)
	}
	return nil
}

// PromoteToActive moves a listed escrow into the active shape, recording the
// first artifact reference. All other fields are carried over unchanged.
func PromoteToActive(d InitEscrow, artifact ArtifactRef) ActiveEscrow {
	return ActiveEscrow{
		Buyer:         d.Buyer,
		Seller:        d.Seller,
		NodeState:     d.NodeState,
		ArtifactRef:   cloneArtifact(artifact),
		ProcessHash:   d.ProcessHash,
		ProceedAmount: d.ProceedAmount,
	}
}

// Advance replaces the position and artifact of an escrow. The terms fixed at
// listing are copied from current and cannot be altered by this call.
func Advance(current Datum, next NodeState, artifact ArtifactRef) (ActiveEscrow, error) {
	if current == nil {
		return ActiveEscrow{}, fmt.Errorf("%w: no current datum", ErrInvalidDatum)
	}
	ns, err := NewNodeState(next.Current, next.Incoming, next.Outgoing)
	if err != nil {
		return ActiveEscrow{}, err
	}
	terms := current.Common()
	return ActiveEscrow{
		Buyer:         terms.Buyer,
		Seller:        terms.Seller,
		NodeState:     ns,
		ArtifactRef:   cloneArtifact(artifact),
		ProcessHash:   terms.ProcessHash,
		ProceedAmount: terms.ProceedAmount,
	}, nil
}

// cloneArtifact copies a reference. An empty reference is always nil, the
// form Decode produces.
func cloneArtifact(a ArtifactRef) ArtifactRef {
	if len(a) == 0 {
		return nil
	}
	return bytes.Clone(a)
}

// Encode returns the CBOR of a datum. The node state is canonicalized first,
// so equal positions encode to identical bytes; a node state that Decode
// would reject yields an *InvalidNodeStateError.
func Encode(d Datum) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil datum", ErrInvalidDatum)
	}
	d, err := canonical(d)
	if err != nil {
		return nil, err
	}
	return EncodeData(d.ToData())
}

func canonical(d Datum) (Datum, error) {
	pos := d.Position()
	ns, err := NewNodeState(pos.Current, pos.Incoming, pos.Outgoing)
	if err != nil {
		return nil, err
	}
	switch v := d.(type) {
	case InitEscrow:
		v.NodeState = ns
		return v, nil
	case ActiveEscrow:
		v.NodeState = ns
		return v, nil
	default:
		return d, nil
	}
}

// Decode parses an escrow datum. The constructor index selects the shape and
// the field count must match that shape exactly.
func Decode(b []byte) (Datum, error) {
	d, err := DecodeData(b)
	if err != nil {
		return nil, err
	}
	return FromData(d)
}

// FromData converts decoded Plutus data into an escrow datum.
func FromData(d Data) (Datum, error) {
	c, ok := d.(Constr)
	if !ok {
		return nil, &FieldError{Path: "datum", Err: fmt.Errorf("%w: want constructor, got %T", ErrMalformedData, d)}
	}
	switch Kind(c.Index) {
	case KindInit:
		return initFromData(c)
	case KindActive:
		return activeFromData(c)
	default:
		return nil, &FieldError{Path: "datum", Err: fmt.Errorf("%w: %d", ErrUnknownConstructor, c.Index)}
	}
}

func initFromData(c Constr) (InitEscrow, error) {
	const path = "InitEscrow"
	if len(c.Fields) != 5 {
		return InitEscrow{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want 5, got %d", ErrFieldCount, len(c.Fields))}
	}
	var (
		out InitEscrow
		err error
	)
	if out.Buyer, err = pubKeyHashField(c.Fields[0], path+".buyer"); err != nil {
		return InitEscrow{}, err
	}
	if out.Seller, err = pubKeyHashField(c.Fields[1], path+".seller"); err != nil {
		return InitEscrow{}, err
	}
	if out.NodeState, err = NodeStateFromData(c.Fields[2]); err != nil {
		return InitEscrow{}, &FieldError{Path: path + ".nodeState", Err: err}
	}
	if out.ProcessHash, err = processHashField(c.Fields[3], path+".processHash"); err != nil {
		return InitEscrow{}, err
	}
	if out.ProceedAmount, err = amountField(c.Fields[4], path+".proceedAmount"); err != nil {
		return InitEscrow{}, err
	}
	return out, nil
}

func activeFromData(c Constr) (ActiveEscrow, error) {
	const path = "ActiveEscrow"
	if len(c.Fields) != 6 {
		return ActiveEscrow{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want 6, got %d", ErrFieldCount, len(c.Fields))}
	}
	var (
		out ActiveEscrow
		err error
	)
	if out.Buyer, err = pubKeyHashField(c.Fields[0], path+".buyer"); err != nil {
		return ActiveEscrow{}, err
	}
	if out.Seller, err = pubKeyHashField(c.Fields[1], path+".seller"); err != nil {
		return ActiveEscrow{}, err
	}
	if out.NodeState, err = NodeStateFromData(c.Fields[2]); err != nil {
		return ActiveEscrow{}, &FieldError{Path: path + ".nodeState", Err: err}
	}
	artifact, err := expectBytes(c.Fields[3], path+".artifactRef")
	if err != nil {
		return ActiveEscrow{}, err
	}
	out.ArtifactRef = cloneArtifact(ArtifactRef(artifact))
	if out.ProcessHash, err = processHashField(c.Fields[4], path+".processHash"); err != nil {
		return ActiveEscrow{}, err
	}
	if out.ProceedAmount, err = amountField(c.Fields[5], path+".proceedAmount"); err != nil {
		return ActiveEscrow{}, err
	}
	return out, nil
}

func pubKeyHashField(d Data, path string) (PubKeyHash, error) {
	b, err := expectBytes(d, path)
	if err != nil {
		return PubKeyHash{}, err
	}
	if len(b) != PubKeyHashSize {
		return PubKeyHash{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedData, PubKeyHashSize, len(b))}
	}
	return PubKeyHash(b), nil
}

func processHashField(d Data, path string) (ProcessHash, error) {
	b, err := expectBytes(d, path)
	if err != nil {
		return ProcessHash{}, err
	}
	if len(b) != ProcessHashSize {
		return ProcessHash{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedData, ProcessHashSize, len(b))}
	}
	return ProcessHash(b), nil
}

func amountField(d Data, path string) (int64, error) {
	i, ok := d.(Int)
	if !ok {
		return 0, &FieldError{Path: path, Err: fmt.Errorf("%w: want int, got %T", ErrMalformedData, d)}
	}
	v, ok := i.Int64()
	if !ok || v < 0 {
		return 0, &FieldError{Path: path, Err: fmt.Errorf("%w: amount out of range", ErrMalformedData)}
	}
	return v, nil
}

func expectBytes(d Data, path string) (Bytes, error) {
	b, ok := d.(Bytes)
	if !ok {
		return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: want bytes, got %T", ErrMalformedData, d)}
	}
	return b, nil
}

func expectConstr(d Data, path string, index uint64, fields int) (Constr, error) {
	c, ok := d.(Constr)
	if !ok {
		return Constr{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want constructor, got %T", ErrMalformedData, d)}
	}
	if c.Index != index {
		return Constr{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want %d, got %d", ErrUnknownConstructor, index, c.Index)}
	}
	if len(c.Fields) != fields {
		return Constr{}, &FieldError{Path: path, Err: fmt.Errorf("%w: want %d, got %d", ErrFieldCount, fields, len(c.Fields))}
	}
	return c, nil
}
