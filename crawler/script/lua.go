package script

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	apperrors "github.com/dotecxy/legado2-sub001/errors"
	luajson "github.com/layeh/gopher-json"
	lua "github.com/yuin/gopher-lua"
)

// LuaEvaluator evaluates rule scripts with gopher-lua.
// Each call gets its own VM, so one evaluator is safe for concurrent use.
type LuaEvaluator struct {
	timeout time.Duration
	logger  *slog.Logger
}

// LuaEvaluatorConfig configures the Lua evaluator
type LuaEvaluatorConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewLuaEvaluator creates a Lua evaluator
func NewLuaEvaluator(config *LuaEvaluatorConfig) *LuaEvaluator {
	if config == nil {
		config = &LuaEvaluatorConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LuaEvaluator{
		timeout: config.Timeout,
		logger:  logger,
	}
}

// Evaluate runs code as an expression when possible, otherwise as a chunk.
// A chunk without a return value yields the global "result".
func (e *LuaEvaluator) Evaluate(ctx context.Context, code string, bindings map[string]any) (any, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	luajson.Preload(L)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	L.SetContext(ctx)

	e.registerFunctions(L)

	// deterministic global order keeps failures reproducible
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		L.SetGlobal(k, goValueToLua(L, bindings[k]))
	}

	code = strings.TrimSpace(code)
	fn, err := L.LoadString("return " + code)
	if err != nil {
		fn, err = L.LoadString(code)
		if err != nil {
			return nil, apperrors.ErrScriptFailed.WithCause(fmt.Errorf("compile: %w", err))
		}
	}

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, apperrors.ErrScriptFailed.WithCause(err)
	}

	var ret lua.LValue = lua.LNil
	if L.GetTop() > 0 {
		ret = L.Get(1)
	}
	if ret == lua.LNil {
		ret = L.GetGlobal("result")
	}
	return luaValueToGo(ret), nil
}

// registerFunctions exposes helpers to rule scripts
func (e *LuaEvaluator) registerFunctions(L *lua.LState) {
	L.SetGlobal("log_info", L.NewFunction(func(L *lua.LState) int {
		e.logger.Info(L.ToString(1), "source", "lua_script")
		return 0
	}))
	L.SetGlobal("log_error", L.NewFunction(func(L *lua.LState) int {
		e.logger.Error(L.ToString(1), "source", "lua_script")
		return 0
	}))
	L.SetGlobal("url_encode", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(url.QueryEscape(L.ToString(1))))
		return 1
	}))
	L.SetGlobal("trim", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(strings.TrimSpace(L.ToString(1))))
		return 1
	}))
}

// goValueToLua converts bindings into Lua values
func goValueToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		tbl := L.NewTable()
		for _, s := range val {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(goValueToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, s := range val {
			tbl.RawSetString(k, lua.LString(s))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, goValueToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaValueToGo converts a Lua value to a Go value
func luaValueToGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		if isArray(v) {
			return luaArrayToSlice(v)
		}
		return luaTableToMap(v)
	default:
		return lua.LVAsString(lv)
	}
}

func luaTableToMap(table *lua.LTable) map[string]any {
	result := make(map[string]any)
	table.ForEach(func(k, v lua.LValue) {
		result[lua.LVAsString(k)] = luaValueToGo(v)
	})
	return result
}

// isArray reports whether keys are exactly 1..n
func isArray(table *lua.LTable) bool {
	n := table.Len()
	if n == 0 {
		return false
	}
	count := 0
	table.ForEach(func(k, v lua.LValue) { count++ })
	return count == n
}

func luaArrayToSlice(table *lua.LTable) []any {
	n := table.Len()
	result := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		result = append(result, luaValueToGo(table.RawGetInt(i)))
	}
	return result
}
