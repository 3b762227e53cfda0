package persist

import (
	"errors"
	"fmt"
	"time"

	"github.com/ztimson/var-perisist/pkg/rule"
)

// ErrNoEvaluator is returned when no rule evaluator can be constructed.
var ErrNoEvaluator = errors.New("persist: evaluator not configured")

// Evaluate runs expr against the current value. The value is exposed in its
// structural form as `value`, alongside `key`, `now` and `args`; see package
// rule for the full environment.
func (p *Persist[T]) Evaluate(expr string) (any, error) {
	return p.EvaluateWith(rule.Context{}, expr)
}

// EvaluateWith runs expr with ctx. Key and Value are filled from the
// persisted value when ctx leaves them empty.
func (p *Persist[T]) EvaluateWith(ctx rule.Context, expr string) (any, error) {
	if expr == "" {
		return nil, rule.ErrEmptyExpression
	}
	evaluator, err := p.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	ctx, err = p.ruleContext(ctx, p.Interface())
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := evaluator.Evaluate(ctx, expr)
	p.logger.Debug("persist: rule evaluated",
		"engine", rule.EngineName(evaluator),
		"expr", expr,
		"duration", time.Since(start),
		"error", err,
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Test evaluates expr as a predicate. A non-boolean result is an error.
func (p *Persist[T]) Test(expr string) (bool, error) {
	result, err := p.Evaluate(expr)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("persist: rule %q returned %T, want bool", expr, result)
	}
	return b, nil
}

// WatchWhen registers fn like Watch, but only calls it when expr holds for
// the new value. expr is compiled once up front; compile errors are
// returned. Evaluation errors during notification are logged and the
// callback skipped.
func (p *Persist[T]) WatchWhen(expr string, fn func(T)) (unsubscribe func(), err error) {
	if expr == "" {
		return nil, rule.ErrEmptyExpression
	}
	evaluator, err := p.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	program, err := evaluator.Compile(expr)
	if err != nil {
		return nil, err
	}
	return p.Watch(func(value T) {
		ctx, err := p.ruleContext(rule.Context{}, value)
		if err != nil {
			p.logger.Warn("persist: watch rule skipped", "expr", expr, "error", err)
			return
		}
		result, err := program.Evaluate(ctx)
		if err != nil {
			p.logger.Warn("persist: watch rule failed", "expr", expr, "error", err)
			return
		}
		if rule.Truthy(result) {
			fn(value)
		}
	}), nil
}

func (p *Persist[T]) ruleContext(ctx rule.Context, value any) (rule.Context, error) {
	if ctx.Key == "" {
		ctx.Key = p.key
	}
	if ctx.Value == nil && value != nil {
		structural, err := toStructural(p.codec, value)
		if err != nil {
			return ctx, fmt.Errorf("persist: encode %q for rule: %w", p.key, err)
		}
		ctx.Value = structural
	}
	return ctx, nil
}

func (p *Persist[T]) resolveEvaluator() (rule.Evaluator, error) {
	if p.evaluator != nil {
		return p.evaluator, nil
	}
	var opts []rule.ExprOption
	if p.programCache != nil {
		opts = append(opts, rule.ExprWithProgramCache(p.programCache))
	}
	if p.functions != nil {
		opts = append(opts, rule.ExprWithFunctionRegistry(p.functions))
	}
	evaluator := rule.NewExprEvaluator(opts...)
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	p.evaluator = evaluator
	return evaluator, nil
}
