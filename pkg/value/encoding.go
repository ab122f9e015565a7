package value

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// wireValue is the msgpack-visible shape of a Value. Using a dedicated
// struct (rather than msgpack tags on Value itself) keeps the public
// Value type's internals private while giving us full control over the
// wire format and its round-trip guarantees.
type wireValue struct {
	Kind  uint8       `msgpack:"k"`
	Bool  bool        `msgpack:"b,omitempty"`
	Int   int64       `msgpack:"i,omitempty"`
	Float float64     `msgpack:"f,omitempty"`
	Str   string      `msgpack:"s,omitempty"`
	Arr   []wireValue `msgpack:"a,omitempty"`
	Obj   []wireKV    `msgpack:"o,omitempty"`
	FnOp  string      `msgpack:"fo,omitempty"`
	FnN   string      `msgpack:"fn,omitempty"`
	FnA   int         `msgpack:"fa,omitempty"`
	SP    uint64      `msgpack:"sp,omitempty"`
	CrID  string      `msgpack:"ci,omitempty"`
	CrN   string      `msgpack:"cn,omitempty"`
}

type wireKV struct {
	Key string    `msgpack:"key"`
	Val wireValue `msgpack:"val"`
}

func toWire(v Value) wireValue {
	w := wireValue{Kind: uint8(v.kind)}
	switch v.kind {
	case KindBool:
		w.Bool = v.b
	case KindInt:
		w.Int = v.i
	case KindFloat:
		w.Float = v.f
	case KindString:
		w.Str = v.s
	case KindArray:
		w.Arr = make([]wireValue, len(v.arr))
		for i, item := range v.arr {
			w.Arr[i] = toWire(item)
		}
	case KindObject:
		w.Obj = make([]wireKV, len(v.obj))
		for i, kv := range v.obj {
			w.Obj[i] = wireKV{Key: kv.Key, Val: toWire(kv.Value)}
		}
	case KindFunctionPointer:
		w.FnOp, w.FnN, w.FnA = v.fn.OperationID, v.fn.Name, v.fn.Arity
	case KindStreamPointer:
		w.SP = v.sp
	case KindCellReference:
		w.CrID, w.CrN = v.cr.ID, v.cr.Name
	}
	return w
}

func fromWire(w wireValue) Value {
	switch Kind(w.Kind) {
	case KindNull:
		return Null()
	case KindBool:
		return Bool(w.Bool)
	case KindInt:
		return Int(w.Int)
	case KindFloat:
		return Float(w.Float)
	case KindString:
		return String(w.Str)
	case KindArray:
		items := make([]Value, len(w.Arr))
		for i, item := range w.Arr {
			items[i] = fromWire(item)
		}
		return Array(items)
	case KindObject:
		pairs := make([]KV, len(w.Obj))
		for i, kv := range w.Obj {
			pairs[i] = KV{Key: kv.Key, Value: fromWire(kv.Val)}
		}
		return Object(pairs)
	case KindFunctionPointer:
		return Func(w.FnOp, w.FnN, w.FnA)
	case KindStreamPointer:
		return Stream(w.SP)
	case KindCellReference:
		return CellRef(CellDescriptor{ID: w.CrID, Name: w.CrN})
	default:
		return Null()
	}
}

// Encode produces the canonical binary encoding of v.
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(toWire(v))
}

// Decode inverts Encode. decode(encode(v)) == v for every representable v.
func Decode(b []byte) (Value, error) {
	var w wireValue
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Value{}, fmt.Errorf("value: decode: %w", err)
	}
	return fromWire(w), nil
}
