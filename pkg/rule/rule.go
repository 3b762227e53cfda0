// Package rule evaluates expressions against a persisted value.
//
// Three engines are available: expr-lang/expr (the default), cel-go, and goja
// (only when built with the js_eval tag). Every engine sees the same
// environment:
//
//	key    the storage key of the value
//	value  the value in its structural form (maps, slices, float64, string, bool, nil)
//	now    evaluation timestamp
//	args   caller supplied arguments
//
// When value is a mapping its top-level members are also bound directly, so
// `mode == "dark"` works as well as `value.mode == "dark"`. Reserved names win
// over members with the same name.
package rule

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Context carries the inputs for a single evaluation.
type Context struct {
	Key   string
	Value any
	Now   *time.Time
	Args  map[string]any
}

func (ctx Context) withDefaults() Context {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx Context) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx Context) members() map[string]any {
	if m, ok := ctx.Value.(map[string]any); ok {
		return m
	}
	return nil
}

// bindings returns the variables visible to an expression.
func (ctx Context) bindings() map[string]any {
	env := make(map[string]any, 4+len(ctx.members()))
	for name, value := range ctx.members() {
		env[name] = value
	}
	env["key"] = ctx.Key
	env["value"] = ctx.Value
	env["now"] = ctx.timestamp()
	env["args"] = ctx.Args
	return env
}

func isReserved(name string) bool {
	switch name {
	case "key", "value", "now", "args":
		return true
	}
	return false
}

// memberSignature identifies the set of member names bound for ctx. Engines
// whose compiled programs depend on declared variables key their cache on it.
func (ctx Context) memberSignature() string {
	members := ctx.members()
	if len(members) == 0 {
		return ""
	}
	names := make([]string, 0, len(members))
	for name := range members {
		if !isReserved(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx Context, expr string) (any, error)
	Compile(expr string) (Program, error)
}

// Program is a reusable compiled expression.
type Program interface {
	Evaluate(ctx Context) (any, error)
}

// ProgramCache stores compiled programs keyed by expression text.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapCache is an unbounded ProgramCache safe for concurrent use.
type MapCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewProgramCache returns an empty MapCache.
func NewProgramCache() *MapCache {
	return &MapCache{programs: make(map[string]any)}
}

func (c *MapCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	program, ok := c.programs[key]
	return program, ok
}

func (c *MapCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.programs == nil {
		c.programs = make(map[string]any)
	}
	c.programs[key] = value
}

// Len reports how many programs are cached.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// EngineName reports the engine behind e: "expr", "cel", "js" or "custom".
func EngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if isJSEvaluator(e) {
			return "js"
		}
		return "custom"
	}
}

// Truthy interprets an evaluation result as a predicate outcome. Only a
// boolean true counts; anything else is false.
func Truthy(result any) bool {
	b, ok := result.(bool)
	return ok && b
}
