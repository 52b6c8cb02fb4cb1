package datum

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// Detailed-schema JSON, as accepted by cardano-cli and Mesh:
//
//	{"constructor": 0, "fields": [...]}
//	{"int": 42}
//	{"bytes": "deadbeef"}
//	{"list": [...]}

type jsonData struct {
	Constructor *uint64           `json:"constructor,omitempty"`
	Fields      []json.RawMessage `json:"fields,omitempty"`
	Int         json.Number       `json:"int,omitempty"`
	Bytes       *string           `json:"bytes,omitempty"`
	List        []json.RawMessage `json:"list,omitempty"`
}

// MarshalJSON renders d in the detailed schema.
func MarshalJSON(d Data) ([]byte, error) {
	v, err := toJSONValue(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func toJSONValue(d Data) (any, error) {
	switch v := d.(type) {
	case Constr:
		fields := make([]any, 0, len(v.Fields))
		for _, f := range v.Fields {
			jv, err := toJSONValue(f)
			if err != nil {
				return nil, err
			}
			fields = append(fields, jv)
		}
		return map[string]any{"constructor": v.Index, "fields": fields}, nil
	case Int:
		return map[string]any{"int": json.Number(v.big().String())}, nil
	case Bytes:
		return map[string]any{"bytes": hex.EncodeToString(v)}, nil
	case List:
		items := make([]any, 0, len(v))
		for _, item := range v {
			jv, err := toJSONValue(item)
			if err != nil {
				return nil, err
			}
			items = append(items, jv)
		}
		return map[string]any{"list": items}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported data type %T", ErrMalformedData, d)
	}
}

// UnmarshalJSON parses the detailed schema.
func UnmarshalJSON(b []byte) (Data, error) {
	// "list" and "fields" must be distinguishable from absent, so probe keys first.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var jd jsonData
	if err := dec.Decode(&jd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	switch {
	case jd.Constructor != nil:
		fields, err := jsonSlice(jd.Fields)
		if err != nil {
			return nil, err
		}
		return Constr{Index: *jd.Constructor, Fields: fields}, nil
	case keys["int"] != nil:
		n, ok := new(big.Int).SetString(jd.Int.String(), 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid int %q", ErrMalformedData, jd.Int)
		}
		return Int{Value: n}, nil
	case jd.Bytes != nil:
		raw, err := hex.DecodeString(*jd.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}
		return Bytes(raw), nil
	case keys["list"] != nil:
		items, err := jsonSlice(jd.List)
		if err != nil {
			return nil, err
		}
		return List(items), nil
	default:
		return nil, fmt.Errorf("%w: unrecognized JSON object", ErrMalformedData)
	}
}

func jsonSlice(raws []json.RawMessage) ([]Data, error) {
	out := make([]Data, 0, len(raws))
	for _, raw := range raws {
		d, err := UnmarshalJSON(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
