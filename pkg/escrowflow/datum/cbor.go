package datum

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Plutus constructor tag ranges.
const (
	compactTagBase   = 121  // constructors 0..6
	extendedTagBase  = 1280 // constructors 7..127
	generalConstrTag = 102  // any other constructor: 102([index, fields])

	bytesChunkSize = 64
)

var encMode = mustEncMode()

var decMode = mustDecMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{BigIntConvert: cbor.BigIntConvertShortest}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("datum: cbor encode mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxNestedLevels: 64,
		IndefLength:     cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("datum: cbor decode mode: %v", err))
	}
	return dm
}

// EncodeData serializes d in the layout used by cardano-serialization-lib:
// non-empty lists and constructor fields are indefinite-length arrays and
// byte strings longer than 64 bytes are split into 64-byte chunks.
// The output is a pure function of d.
func EncodeData(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeData(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeData(buf *bytes.Buffer, d Data) error {
	switch v := d.(type) {
	case Constr:
		raw, err := encodeConstr(v)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case Int:
		raw, err := encMode.Marshal(v.big())
		if err != nil {
			return fmt.Errorf("encode int: %w", err)
		}
		buf.Write(raw)
	case Bytes:
		return writeBytes(buf, v)
	case List:
		raw, err := encodeArray(v)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case nil:
		return fmt.Errorf("%w: nil data value", ErrMalformedData)
	default:
		return fmt.Errorf("%w: unsupported data type %T", ErrMalformedData, d)
	}
	return nil
}

func encodeConstr(c Constr) ([]byte, error) {
	fields, err := encodeArray(c.Fields)
	if err != nil {
		return nil, err
	}

	var tag cbor.RawTag
	switch {
	case c.Index < 7:
		tag = cbor.RawTag{Number: compactTagBase + c.Index, Content: fields}
	case c.Index < 128:
		tag = cbor.RawTag{Number: extendedTagBase + c.Index - 7, Content: fields}
	default:
		idx, err := encMode.Marshal(c.Index)
		if err != nil {
			return nil, fmt.Errorf("encode constructor index: %w", err)
		}
		content := make([]byte, 0, 1+len(idx)+len(fields))
		content = append(content, 0x82)
		content = append(content, idx...)
		content = append(content, fields...)
		tag = cbor.RawTag{Number: generalConstrTag, Content: content}
	}

	raw, err := encMode.Marshal(tag)
	if err != nil {
		return nil, fmt.Errorf("encode constructor %d: %w", c.Index, err)
	}
	return raw, nil
}

func encodeArray(items []Data) ([]byte, error) {
	if len(items) == 0 {
		return []byte{0x80}, nil
	}
	var buf bytes.Buffer
	buf.WriteByte(0x9f)
	for _, item := range items {
		if err := writeData(&buf, item); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(0xff)
	return buf.Bytes(), nil
}

func writeBytes(buf *bytes.Buffer, b Bytes) error {
	// A nil slice would marshal as CBOR null.
	if b == nil {
		b = Bytes{}
	}
	if len(b) <= bytesChunkSize {
		raw, err := encMode.Marshal([]byte(b))
		if err != nil {
			return fmt.Errorf("encode bytes: %w", err)
		}
		buf.Write(raw)
		return nil
	}

	buf.WriteByte(0x5f)
	for start := 0; start < len(b); start += bytesChunkSize {
		end := min(start+bytesChunkSize, len(b))
		raw, err := encMode.Marshal([]byte(b[start:end]))
		if err != nil {
			return fmt.Errorf("encode bytes chunk: %w", err)
		}
		buf.Write(raw)
	}
	buf.WriteByte(0xff)
	return nil
}

// DecodeData parses a single Plutus data item. Trailing bytes, maps, text
// strings and tags outside the constructor and bignum ranges are rejected.
func DecodeData(b []byte) (Data, error) {
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return fromCBOR(v)
}

func fromCBOR(v any) (Data, error) {
	switch x := v.(type) {
	case cbor.Tag:
		return constrFromTag(x)
	case []byte:
		return Bytes(x), nil
	case uint64:
		return Int{Value: new(big.Int).SetUint64(x)}, nil
	case int64:
		return NewInt(x), nil
	case big.Int:
		return Int{Value: new(big.Int).Set(&x)}, nil
	case *big.Int:
		return Int{Value: new(big.Int).Set(x)}, nil
	case []any:
		items, err := dataSlice(x)
		if err != nil {
			return nil, err
		}
		return List(items), nil
	default:
		return nil, fmt.Errorf("%w: unsupported item of type %T", ErrMalformedData, v)
	}
}

func constrFromTag(t cbor.Tag) (Data, error) {
	var (
		index   uint64
		payload any
	)

	switch {
	case t.Number >= compactTagBase && t.Number < compactTagBase+7:
		index, payload = t.Number-compactTagBase, t.Content
	case t.Number >= extendedTagBase && t.Number < extendedTagBase+121:
		index, payload = t.Number-extendedTagBase+7, t.Content
	case t.Number == generalConstrTag:
		pair, ok := t.Content.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%w: tag 102 content must be [index, fields]", ErrMalformedData)
		}
		idx, ok := pair[0].(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: tag 102 index must be an unsigned int", ErrMalformedData)
		}
		index, payload = idx, pair[1]
	default:
		return nil, fmt.Errorf("%w: unsupported tag %d", ErrMalformedData, t.Number)
	}

	raw, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: constructor %d fields must be an array", ErrMalformedData, index)
	}
	fields, err := dataSlice(raw)
	if err != nil {
		return nil, err
	}
	return Constr{Index: index, Fields: fields}, nil
}

func dataSlice(items []any) ([]Data, error) {
	out := make([]Data, 0, len(items))
	for _, item := range items {
		d, err := fromCBOR(item)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
