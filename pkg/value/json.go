package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotJSONEncodable is returned by ToJSON for FunctionPointer and
// StreamPointer values, which have no JSON representation.
var ErrNotJSONEncodable = errors.New("value: not JSON-encodable")

// FromJSON maps a JSON value (already decoded by encoding/json into
// interface{}) onto the Value domain. Numbers that round-trip through
// json.Number without a fractional part or exponent become Int; all
// others become Float, matching the natural Int<->Number, Float<->Number
// mapping.
func FromJSON(j interface{}) (Value, error) {
	switch t := j.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberFromJSONNumber(t)
	case float64:
		return numberFromFloat64(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, elem := range t {
			v, err := FromJSON(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Array(items), nil
	case map[string]interface{}:
		pairs := make([]KV, 0, len(t))
		for k, elem := range t {
			v, err := FromJSON(elem)
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, KV{Key: k, Value: v})
		}
		sortKV(pairs)
		return Object(pairs), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported JSON type %T", j)
	}
}

func sortKV(pairs []KV) {
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j-1].Key > pairs[j].Key; j-- {
			pairs[j-1], pairs[j] = pairs[j], pairs[j-1]
		}
	}
}

func numberFromJSONNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("value: invalid JSON number %q: %w", n, err)
	}
	return Float(f), nil
}

func numberFromFloat64(f float64) Value {
	if f == float64(int64(f)) {
		return Int(int64(f))
	}
	return Float(f)
}

// ParseJSON decodes raw JSON bytes straight into a Value, preserving
// integer-vs-float distinctions via json.Number.
func ParseJSON(b []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("value: parse json: %w", err)
	}
	return FromJSON(raw)
}

// ToJSON maps v onto a plain interface{} JSON tree. FunctionPointer and
// StreamPointer are not JSON-encodable.
func ToJSON(v Value) (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			j, err := ToJSON(item)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case KindObject:
		out := make(map[string]interface{}, len(v.obj))
		for _, kv := range v.obj {
			j, err := ToJSON(kv.Value)
			if err != nil {
				return nil, err
			}
			out[kv.Key] = j
		}
		return out, nil
	case KindCellReference:
		return map[string]interface{}{"id": v.cr.ID, "name": v.cr.Name}, nil
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrNotJSONEncodable, v.kind)
	}
}

// MarshalJSON renders v as JSON bytes, using ToJSON's mapping.
func MarshalJSON(v Value) ([]byte, error) {
	j, err := ToJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}
