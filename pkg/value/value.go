// Package value implements the canonical Value domain exchanged between
// operations and script hosts: a small tagged union with a stable binary
// encoding, a JSON projection, and a human-readable renderer.
package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindFunctionPointer
	KindStreamPointer
	KindCellReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunctionPointer:
		return "function_pointer"
	case KindStreamPointer:
		return "stream_pointer"
	case KindCellReference:
		return "cell_reference"
	default:
		return "unknown"
	}
}

// FunctionPointer is an opaque handle to a function exposed by an operation.
type FunctionPointer struct {
	OperationID string
	Name        string
	Arity       int
}

// CellDescriptor identifies a cell by id and display name.
type CellDescriptor struct {
	ID   string
	Name string
}

// KV is one ordered key/value pair of an Object. Objects preserve
// insertion order so render_string and JSON output are deterministic.
type KV struct {
	Key   string
	Value Value
}

// Value is the tagged union described in / §3.
//
// Only one of the fields below is meaningful, selected by Kind. The
// struct is copied by value; Array/Object share backing slices, which is
// fine because Values are treated as immutable once constructed.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	arr []Value
	obj []KV
	fn  FunctionPointer
	sp  uint64
	cr  CellDescriptor
}

func (v Value) Kind() Kind { return v.kind }

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Stream(id uint64) Value      { return Value{kind: KindStreamPointer, sp: id} }
func CellRef(d CellDescriptor) Value {
	return Value{kind: KindCellReference, cr: d}
}

func Func(operationID, name string, arity int) Value {
	return Value{kind: KindFunctionPointer, fn: FunctionPointer{
		OperationID: operationID,
		Name:        name,
		Arity:       arity,
	}}
}

// Array builds an Array value. The slice is not copied; callers must not
// mutate it afterwards.
func Array(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Object builds an Object value from ordered key/value pairs.
func Object(pairs []KV) Value {
	if pairs == nil {
		pairs = []KV{}
	}
	return Value{kind: KindObject, obj: pairs}
}

// ObjectFromMap builds an Object value from a map, ordering keys
// lexicographically for determinism. Prefer Object when insertion order
// matters to the caller.
func ObjectFromMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	pairs := make([]KV, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, KV{Key: k, Value: m[k]})
	}
	return Object(pairs)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// AsBool, AsInt, etc. panic if Kind doesn't match; callers that don't
// control the Kind should switch on Kind() first.

func (v Value) AsBool() bool { v.mustBe(KindBool); return v.b }
func (v Value) AsInt() int64 { v.mustBe(KindInt); return v.i }
func (v Value) AsFloat() float64 { v.mustBe(KindFloat); return v.f }
func (v Value) AsString() string { v.mustBe(KindString); return v.s }
func (v Value) AsArray() []Value { v.mustBe(KindArray); return v.arr }
func (v Value) AsObject() []KV   { v.mustBe(KindObject); return v.obj }
func (v Value) AsFunctionPointer() FunctionPointer { v.mustBe(KindFunctionPointer); return v.fn }
func (v Value) AsStreamPointer() uint64            { v.mustBe(KindStreamPointer); return v.sp }
func (v Value) AsCellReference() CellDescriptor    { v.mustBe(KindCellReference); return v.cr }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("value: expected %s, got %s", k, v.kind))
	}
}

// Get looks up a key in an Object value; ok is false if v is not an
// Object or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, kv := range v.obj {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// Equal reports structural equality, ("equality is structural").
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindStreamPointer:
		return a.sp == b.sp
	case KindCellReference:
		return a.cr == b.cr
	case KindFunctionPointer:
		return a.fn == b.fn
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for i := range a.obj {
			if a.obj[i].Key != b.obj[i].Key || !Equal(a.obj[i].Value, b.obj[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
