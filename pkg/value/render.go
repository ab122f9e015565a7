package value

import (
	"strconv"
	"strings"
)

// RenderString produces a human-readable rendering: arrays are
// comma-joined, objects are rendered as "k: v" pairs.
func RenderString(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = RenderString(item)
		}
		return strings.Join(parts, ", ")
	case KindObject:
		parts := make([]string, len(v.obj))
		for i, kv := range v.obj {
			parts[i] = kv.Key + ": " + RenderString(kv.Value)
		}
		return strings.Join(parts, ", ")
	case KindFunctionPointer:
		return "<fn " + v.fn.Name + ">"
	case KindStreamPointer:
		return "<stream " + strconv.FormatUint(v.sp, 10) + ">"
	case KindCellReference:
		return "<cell " + v.cr.Name + ">"
	default:
		return ""
	}
}
