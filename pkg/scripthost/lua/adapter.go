// Package lua adapts github.com/yuin/gopher-lua as one concrete Script
// Host Adapter. Lua stands in for the Python/JavaScript
// runtimes a production instance would embed, giving Code cells a real,
// sandboxable interpreter to run against without process-per-cell
// overhead.
package lua

import (
	"context"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/smilemakc/mbflow/pkg/scripthost"
	"github.com/smilemakc/mbflow/pkg/value"
)

// Adapter runs Lua source via gopher-lua.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

// Run implements scripthost.Adapter.
func (Adapter) Run(ctx context.Context, source string, payload value.Value, cfg scripthost.Config) (scripthost.Result, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	var stdout []string
	L.SetGlobal("print", L.NewFunction(func(ls *lua.LState) int {
		n := ls.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = ls.ToStringMeta(ls.Get(i)).String()
		}
		stdout = append(stdout, joinSpace(parts))
		return 0
	}))

	L.SetGlobal("payload", toLua(L, payload))

	if err := L.DoString(source); err != nil {
		return scripthost.Result{Stdout: stdout, Stderr: []string{err.Error()}}, err
	}

	if cfg.FunctionName == "" {
		globals := map[string]value.Value{}
		for _, name := range cfg.ExposedGlobals {
			globals[name] = fromLua(L.GetGlobal(name))
		}
		return scripthost.Result{Output: value.ObjectFromMap(globals), Stdout: stdout}, nil
	}

	fn := L.GetGlobal(cfg.FunctionName)
	if fn == lua.LNil {
		err := fmt.Errorf("function %q not defined", cfg.FunctionName)
		return scripthost.Result{Stdout: stdout, Stderr: []string{err.Error()}}, err
	}

	args := make([]lua.LValue, 0, len(cfg.Args))
	for _, a := range cfg.Args {
		args = append(args, toLua(L, a))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return scripthost.Result{Stdout: stdout, Stderr: []string{err.Error()}}, err
	}
	ret := L.Get(-1)
	L.Pop(1)

	return scripthost.Result{Output: fromLua(ret), Stdout: stdout}, nil
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\t"
		}
		out += p
	}
	return out
}

func toLua(L *lua.LState, v value.Value) lua.LValue {
	switch v.Kind() {
	case value.KindNull:
		return lua.LNil
	case value.KindBool:
		return lua.LBool(v.AsBool())
	case value.KindInt:
		return lua.LNumber(v.AsInt())
	case value.KindFloat:
		return lua.LNumber(v.AsFloat())
	case value.KindString:
		return lua.LString(v.AsString())
	case value.KindArray:
		tbl := L.NewTable()
		for i, item := range v.AsArray() {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case value.KindObject:
		tbl := L.NewTable()
		for _, kv := range v.AsObject() {
			tbl.RawSetString(kv.Key, toLua(L, kv.Value))
		}
		return tbl
	default:
		return lua.LNil
	}
}

func fromLua(v lua.LValue) value.Value {
	switch lv := v.(type) {
	case *lua.LNilType:
		return value.Null()
	case lua.LBool:
		return value.Bool(bool(lv))
	case lua.LNumber:
		f := float64(lv)
		if f == float64(int64(f)) {
			return value.Int(int64(f))
		}
		return value.Float(f)
	case lua.LString:
		return value.String(string(lv))
	case *lua.LTable:
		return fromLuaTable(lv)
	default:
		return value.Null()
	}
}

func fromLuaTable(tbl *lua.LTable) value.Value {
	n := tbl.Len()
	hasNamedKeys := false
	tbl.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok && int(num) >= 1 && int(num) <= n {
			return
		}
		hasNamedKeys = true
	})
	if n > 0 && !hasNamedKeys {
		items := make([]value.Value, 0, n)
		for i := 1; i <= n; i++ {
			items = append(items, fromLua(tbl.RawGetInt(i)))
		}
		return value.Array(items)
	}
	// Mixed or purely named table: keep every field by flattening the
	// array part into string-indexed keys rather than dropping it.
	m := map[string]value.Value{}
	for i := 1; i <= n; i++ {
		m[strconv.Itoa(i)] = fromLua(tbl.RawGetInt(i))
	}
	tbl.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok && int(num) >= 1 && int(num) <= n {
			return
		}
		m[k.String()] = fromLua(v)
	})
	return value.ObjectFromMap(m)
}
