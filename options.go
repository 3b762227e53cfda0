package persist

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/ztimson/var-perisist/pkg/activity"
	"github.com/ztimson/var-perisist/pkg/rule"
	"github.com/ztimson/var-perisist/pkg/storage"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Persist.
type Option func(*settings)

type settings struct {
	storage      storage.Storage
	codec        Codec
	def          any
	hasDefault   bool
	hint         any
	logger       *slog.Logger
	tracer       trace.Tracer
	hooks        activity.Hooks
	activity     activity.Config
	evaluator    rule.Evaluator
	programCache rule.ProgramCache
	functions    *rule.FunctionRegistry
	errs         []error
}

func applyOptions(opts []Option) settings {
	cfg := settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithDefault sets the value used while nothing is stored. Untyped constants
// take their default Go type, so a Persist[float64] needs WithDefault(1.0) or
// WithDefault[float64](1).
func WithDefault[T any](value T) Option {
	return func(cfg *settings) {
		cfg.def = value
		cfg.hasDefault = true
	}
}

// WithStorage binds the value to s instead of the process-wide default.
func WithStorage(s storage.Storage) Option {
	return func(cfg *settings) {
		cfg.storage = s
	}
}

// WithType sets the hint used to restore stored objects.
func WithType[T any](hint TypeHint[T]) Option {
	return func(cfg *settings) {
		if hint != nil {
			cfg.hint = hint
		}
	}
}

// WithCodec replaces the JSON codec.
func WithCodec(codec Codec) Option {
	return func(cfg *settings) {
		cfg.codec = codec
	}
}

// WithLogger sets the structured logger. Logging is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *settings) {
		cfg.logger = logger
	}
}

// WithTracer sets the tracer for load, save and clear spans. The global
// OpenTelemetry provider is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(cfg *settings) {
		cfg.tracer = tracer
	}
}

// WithActivityHooks enables activity emission to hooks with default settings.
func WithActivityHooks(hooks activity.Hooks) Option {
	return WithActivity(hooks, activity.Config{Enabled: true})
}

// WithActivity attaches activity hooks with explicit emitter settings.
// Hooks are cloned and nil entries dropped.
func WithActivity(hooks activity.Hooks, cfg activity.Config) Option {
	normalized := activity.CloneHooks(hooks)
	return func(s *settings) {
		s.hooks = normalized
		s.activity = cfg
	}
}

// WithEvaluator sets the rule evaluator. The expr evaluator is used when none
// is configured.
func WithEvaluator(e rule.Evaluator) Option {
	return func(cfg *settings) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a program cache for the default evaluator.
func WithProgramCache(cache rule.ProgramCache) Option {
	return func(cfg *settings) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry exposes registry functions to the default evaluator.
func WithFunctionRegistry(registry *rule.FunctionRegistry) Option {
	return func(cfg *settings) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithFunction registers fn under name for the default evaluator.
func WithFunction(name string, fn rule.Function) Option {
	return func(cfg *settings) {
		if cfg.functions == nil {
			cfg.functions = rule.NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.errs = append(cfg.errs, err)
		}
	}
}

func resolveDefault[T any](cfg settings) (T, bool, error) {
	var zero T
	if !cfg.hasDefault {
		return zero, false, nil
	}
	if cfg.def == nil {
		return zero, true, nil
	}
	value, ok := cfg.def.(T)
	if !ok {
		return zero, false, fmt.Errorf("persist: default of type %T does not match %s", cfg.def, reflect.TypeFor[T]())
	}
	return value, true, nil
}

func resolveHint[T any](cfg settings) (TypeHint[T], error) {
	if cfg.hint == nil {
		return nil, nil
	}
	hint, ok := cfg.hint.(TypeHint[T])
	if !ok {
		return nil, fmt.Errorf("persist: type hint %T does not produce %s", cfg.hint, reflect.TypeFor[T]())
	}
	return hint, nil
}
