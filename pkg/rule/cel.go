package rule

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELOption configures the CEL evaluator.
type CELOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
// Registered functions are exposed as single-argument CEL functions.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	return e.run(ctx.withDefaults(), expression)
}

// Compile checks expression against an environment without value members
// and returns a program that recompiles per member set on demand.
func (e *celEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	if _, err := e.loadOrCompile(expression, Context{}); err != nil {
		return nil, err
	}
	return &celProgram{
		evaluator:  e,
		expression: expression,
	}, nil
}

func (e *celEvaluator) run(ctx Context, expression string) (any, error) {
	program, err := e.loadOrCompile(expression, ctx)
	if err != nil {
		return nil, err
	}
	out, _, err := program.Eval(ctx.bindings())
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.Key, err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) loadOrCompile(expression string, ctx Context) (celgo.Program, error) {
	cacheKey := expression
	if signature := ctx.memberSignature(); signature != "" {
		cacheKey = expression + "\x00" + signature
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(ctx)
	if err != nil {
		return nil, wrapEvaluatorError("cel", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.Key, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.Key, err)
	}
	if e.cache != nil {
		e.cache.Set(cacheKey, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv(ctx Context) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("key", celgo.StringType),
		celgo.Variable("value", celgo.DynType),
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.MapType(celgo.StringType, celgo.DynType)),
	}
	for name := range ctx.members() {
		if isReserved(name) {
			continue
		}
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	for _, name := range e.registry.Names() {
		opts = append(opts, celgo.Function(name,
			celgo.Overload(name+"_dyn", []*celgo.Type{celgo.DynType}, celgo.DynType,
				celgo.UnaryBinding(e.callBinding(name)),
			),
		))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) callBinding(name string) func(ref.Val) ref.Val {
	return func(arg ref.Val) ref.Val {
		result, err := e.registry.Call(name, arg.Value())
		if err != nil {
			return types.NewErr("rule: %s: %v", name, err)
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celProgram struct {
	evaluator  *celEvaluator
	expression string
}

func (p *celProgram) Evaluate(ctx Context) (any, error) {
	if p.evaluator == nil {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("compiled program missing evaluator"))
	}
	return p.evaluator.run(ctx.withDefaults(), p.expression)
}
