package datum

import (
	"bytes"
	"math/big"
)

// Data is a Plutus data value: one of Constr, Int, Bytes or List.
type Data interface {
	isData()
}

// Constr is a constructor application with positional fields.
type Constr struct {
	Index  uint64
	Fields []Data
}

// Int is an arbitrary-precision integer. A nil Value encodes as zero.
type Int struct {
	Value *big.Int
}

// Bytes is a byte string.
type Bytes []byte

// List is an ordered sequence of data values.
type List []Data

func (Constr) isData() {}
func (Int) isData()    {}
func (Bytes) isData()  {}
func (List) isData()   {}

// NewConstr builds a constructor application.
func NewConstr(index uint64, fields ...Data) Constr {
	if fields == nil {
		fields = []Data{}
	}
	return Constr{Index: index, Fields: fields}
}

// NewInt wraps an int64.
func NewInt(v int64) Int {
	return Int{Value: big.NewInt(v)}
}

// Int64 returns the value as an int64 and whether it fits.
func (i Int) Int64() (int64, bool) {
	if i.Value == nil {
		return 0, true
	}
	if !i.Value.IsInt64() {
		return 0, false
	}
	return i.Value.Int64(), true
}

func (i Int) big() *big.Int {
	if i.Value == nil {
		return new(big.Int)
	}
	return i.Value
}

// Equal reports whether two data values are structurally identical.
func Equal(a, b Data) bool {
	switch av := a.(type) {
	case Constr:
		bv, ok := b.(Constr)
		if !ok || av.Index != bv.Index || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if !Equal(av.Fields[i], bv.Fields[i]) {
				return false
			}
		}
		return true
	case Int:
		bv, ok := b.(Int)
		return ok && av.big().Cmp(bv.big()) == 0
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && bytes.Equal(av, bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
