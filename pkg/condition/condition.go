// Package condition evaluates item conditions against a frozen snapshot of
// player and machine variables.
//
// Expressions are Lua expressions. Each variable scope in the snapshot is
// bound to a global table of the same name, so a condition reads like
//
//	current_player.show_item4
//	machine.player2_score > 0 and not current_player.hide_item1
//
// Missing variables are nil, and Lua truthiness decides the result: only nil
// and false are false. Zero and the empty string are true, so a numeric flag
// is tested with a comparison (current_player.hide_item1 ~= 0) rather than
// on its own.
//
// Expressions run in a sandbox holding the base, string, table and math
// libraries. There is no io, os, package or debug library, and the base
// functions that read files are removed.
package condition

import (
	"fmt"
	"maps"
	"strings"

	"github.com/Shopify/go-lua"
)

// Variable scopes bound by the engine.
const (
	ScopePlayer  = "current_player"
	ScopeMachine = "machine"
)

// Snapshot is an immutable view of variables keyed by scope then name.
type Snapshot map[string]map[string]any

// Clone returns a copy of s whose scope maps can be mutated freely.
func (s Snapshot) Clone() Snapshot {
	cp := make(Snapshot, len(s))
	for scope, vars := range s {
		cp[scope] = maps.Clone(vars)
	}
	return cp
}

// Evaluator decides whether an expression holds for a snapshot.
type Evaluator interface {
	Evaluate(expr string, vars Snapshot) (bool, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(expr string, vars Snapshot) (bool, error)

// Evaluate calls the underlying function.
func (f Func) Evaluate(expr string, vars Snapshot) (bool, error) {
	return f(expr, vars)
}

// libraries opened in every evaluation state.
var libraries = []lua.RegistryFunction{
	{Name: "_G", Function: lua.BaseOpen},
	{Name: "string", Function: lua.StringOpen},
	{Name: "table", Function: lua.TableOpen},
	{Name: "math", Function: lua.MathOpen},
}

// unsafeGlobals are base functions that reach the filesystem.
var unsafeGlobals = []string{"dofile", "loadfile"}

// Lua evaluates expressions with an embedded Lua interpreter. Every call
// runs in a fresh interpreter state, so evaluations never observe each
// other. The zero value is ready to use.
type Lua struct {
	// Scopes are always bound, even when absent from the snapshot, so that
	// indexing them never fails. Defaults to ScopePlayer and ScopeMachine.
	Scopes []string
}

// NewLua returns a Lua evaluator binding the default scopes.
func NewLua() *Lua {
	return &Lua{Scopes: []string{ScopePlayer, ScopeMachine}}
}

// Check compiles expr without evaluating it.
func (e *Lua) Check(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("condition: empty expression")
	}

	l := lua.NewState()
	if err := lua.LoadString(l, chunk(expr)); err != nil {
		return fmt.Errorf("condition: %s: %w", expr, err)
	}

	return nil
}

// Evaluate runs expr against vars and reports its truthiness.
func (e *Lua) Evaluate(expr string, vars Snapshot) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, fmt.Errorf("condition: empty expression")
	}

	l := newSandbox()

	scopes := e.Scopes
	if scopes == nil {
		scopes = []string{ScopePlayer, ScopeMachine}
	}
	for _, scope := range scopes {
		if _, ok := vars[scope]; !ok {
			l.NewTable()
			l.SetGlobal(scope)
		}
	}
	for scope, values := range vars {
		pushTable(l, values)
		l.SetGlobal(scope)
	}

	if err := lua.LoadString(l, chunk(expr)); err != nil {
		return false, fmt.Errorf("condition: %s: %w", expr, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return false, fmt.Errorf("condition: %s: %w", expr, err)
	}

	result := l.ToBoolean(-1)
	l.Pop(1)

	return result, nil
}

func newSandbox() *lua.State {
	l := lua.NewState()
	for _, lib := range libraries {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range unsafeGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
	return l
}

func chunk(expr string) string {
	return "return (" + expr + ")"
}

// pushTable pushes a Lua table holding values onto the stack.
func pushTable(l *lua.State, values map[string]any) {
	l.NewTable()
	for k, v := range values {
		if pushValue(l, v) {
			l.SetField(-2, k)
		}
	}
}

// pushValue pushes v and reports whether anything was pushed. Values with no
// Lua counterpart are skipped and read as nil.
func pushValue(l *lua.State, v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		l.PushBoolean(val)
	case string:
		l.PushString(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushInteger(int(val))
	case int32:
		l.PushInteger(int(val))
	case uint:
		l.PushInteger(int(val))
	case float32:
		l.PushNumber(float64(val))
	case float64:
		l.PushNumber(val)
	case []string:
		l.NewTable()
		for i, s := range val {
			l.PushString(s)
			l.RawSetInt(-2, i+1)
		}
	case []any:
		l.NewTable()
		for i, item := range val {
			if pushValue(l, item) {
				l.RawSetInt(-2, i+1)
			}
		}
	case map[string]any:
		pushTable(l, val)
	default:
		return false
	}
	return true
}
