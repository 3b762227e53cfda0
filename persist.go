package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/ztimson/var-perisist/pkg/activity"
	"github.com/ztimson/var-perisist/pkg/rule"
	"github.com/ztimson/var-perisist/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ztimson/var-perisist"

// Persist synchronizes a value of type T with one key of a storage adapter.
type Persist[T any] struct {
	key     string
	storage storage.Storage
	codec   Codec
	hint    TypeHint[T]

	def        T
	hasDefault bool

	value   T
	defined bool

	observers *observers[T]

	logger  *slog.Logger
	tracer  trace.Tracer
	emitter *activity.Emitter

	evaluator    rule.Evaluator
	programCache rule.ProgramCache
	functions    *rule.FunctionRegistry
}

// New binds a value to key and loads it. A missing key is not an error: the
// value starts from the default, or undefined when none is configured.
// Malformed stored text and adapter failures are returned.
func New[T any](key string, opts ...Option) (*Persist[T], error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	cfg := applyOptions(opts)
	if len(cfg.errs) > 0 {
		return nil, errors.Join(cfg.errs...)
	}
	def, hasDefault, err := resolveDefault[T](cfg)
	if err != nil {
		return nil, err
	}
	hint, err := resolveHint[T](cfg)
	if err != nil {
		return nil, err
	}

	p := &Persist[T]{
		key:          key,
		storage:      cfg.storage,
		codec:        cfg.codec,
		hint:         hint,
		def:          def,
		hasDefault:   hasDefault,
		observers:    newObservers[T](),
		logger:       cfg.logger,
		tracer:       cfg.tracer,
		emitter:      activity.NewEmitter(cfg.hooks, cfg.activity),
		evaluator:    cfg.evaluator,
		programCache: cfg.programCache,
		functions:    cfg.functions,
	}
	if p.storage == nil {
		p.storage = DefaultStorage()
	}
	if p.codec == nil {
		p.codec = JSON{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With("key", key)
	if p.tracer == nil {
		p.tracer = otel.Tracer(instrumentationName)
	}
	if hasDefault {
		if _, err := p.cloneDefault(); err != nil {
			return nil, err
		}
	}

	if err := p.load(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// MustNew is New that panics on error.
func MustNew[T any](key string, opts ...Option) *Persist[T] {
	p, err := New[T](key, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the storage key.
func (p *Persist[T]) Key() string {
	return p.key
}

// Get returns the value if defined, else the default, else the zero value.
func (p *Persist[T]) Get() T {
	if p.defined {
		return p.value
	}
	return p.def
}

// Lookup returns the value and whether it is defined. An undefined value is
// reported as the zero value.
func (p *Persist[T]) Lookup() (T, bool) {
	if !p.defined {
		var zero T
		return zero, false
	}
	return p.value, true
}

// Defined reports whether a value has been set.
func (p *Persist[T]) Defined() bool {
	return p.defined
}

// Set stores v and saves it before returning. On a write failure the
// in-memory value keeps v and a *WriteError is returned.
func (p *Persist[T]) Set(v T) error {
	return p.set(context.Background(), v)
}

// Unset marks the value undefined and removes the stored slot.
func (p *Persist[T]) Unset() error {
	return p.unset(context.Background())
}

// Save writes the current value to storage (removing the slot when undefined)
// and notifies watchers. Watchers are not notified when the write fails.
func (p *Persist[T]) Save() error {
	return p.save(context.Background())
}

// Load re-reads the stored value, replacing the in-memory one.
func (p *Persist[T]) Load() error {
	return p.load(context.Background())
}

// Clear removes the stored slot without touching the in-memory value or
// notifying watchers. The next Save writes the value back.
func (p *Persist[T]) Clear() error {
	ctx, span := p.startSpan(context.Background(), "persist.clear")
	defer span.End()

	if err := p.storage.Remove(p.key); err != nil {
		werr := &WriteError{Key: p.key, Op: "remove", Err: err}
		recordError(span, werr)
		return werr
	}
	p.logger.Debug("persist: cleared")
	p.emit(ctx, activity.VerbCleared, "")
	return nil
}

func (p *Persist[T]) set(ctx context.Context, v T) error {
	p.value = v
	p.defined = true
	return p.save(ctx)
}

func (p *Persist[T]) unset(ctx context.Context) error {
	var zero T
	p.value = zero
	p.defined = false
	return p.save(ctx)
}

func (p *Persist[T]) save(ctx context.Context) error {
	ctx, span := p.startSpan(ctx, "persist.save")
	defer span.End()

	if !p.defined {
		if err := p.storage.Remove(p.key); err != nil {
			werr := &WriteError{Key: p.key, Op: "remove", Err: err}
			recordError(span, werr)
			return werr
		}
		p.logger.Debug("persist: removed undefined value")
		p.observers.notify(p.Get())
		p.emit(ctx, activity.VerbRemoved, "")
		return nil
	}

	data, err := p.codec.Marshal(p.value)
	if err != nil {
		werr := &WriteError{Key: p.key, Op: "encode", Err: err}
		recordError(span, werr)
		return werr
	}
	text := string(data)
	if err := p.storage.Set(p.key, text); err != nil {
		werr := &WriteError{Key: p.key, Op: "set", Err: err}
		recordError(span, werr)
		return werr
	}
	p.logger.Debug("persist: saved", "bytes", len(text))
	p.observers.notify(p.Get())
	p.emit(ctx, activity.VerbSaved, text)
	return nil
}

func (p *Persist[T]) load(ctx context.Context) error {
	ctx, span := p.startSpan(ctx, "persist.load")
	defer span.End()

	text, ok, err := p.storage.Get(p.key)
	if err != nil {
		err = fmt.Errorf("persist: load %q: %w", p.key, err)
		recordError(span, err)
		return err
	}
	if !ok {
		p.logger.Debug("persist: nothing stored", "default", p.hasDefault)
		if p.hasDefault {
			def, err := p.cloneDefault()
			if err != nil {
				recordError(span, err)
				return err
			}
			return p.set(ctx, def)
		}
		return p.unset(ctx)
	}

	value, err := p.decode(text)
	if err != nil {
		recordError(span, err)
		return err
	}
	p.logger.Debug("persist: loaded", "bytes", len(text))
	return p.set(ctx, value)
}

func (p *Persist[T]) decode(text string) (T, error) {
	var zero T
	var data any
	if err := p.codec.Unmarshal([]byte(text), &data); err != nil {
		return zero, &MalformedDataError{Key: p.key, Data: text, Err: err}
	}
	if p.hint != nil && isObject(data) {
		value, err := p.hint.Restore(p.key, data)
		if err != nil {
			return zero, &MalformedDataError{Key: p.key, Data: text, Err: err}
		}
		return value, nil
	}
	var value T
	if err := p.codec.Unmarshal([]byte(text), &value); err != nil {
		return zero, &MalformedDataError{Key: p.key, Data: text, Err: err}
	}
	return value, nil
}

// cloneDefault copies reference-typed defaults so that mutating the value
// never reaches the configured default. Objects go through the type hint when
// one is set and through the codec otherwise.
func (p *Persist[T]) cloneDefault() (T, error) {
	var zero T
	switch reflect.ValueOf(any(p.def)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Struct, reflect.Array:
	default:
		return p.def, nil
	}
	if p.hint != nil {
		data, err := toStructural(p.codec, p.def)
		if err != nil {
			return zero, fmt.Errorf("%w: %q: %w", ErrDefaultNotCopyable, p.key, err)
		}
		if isObject(data) {
			value, err := p.hint.Restore(p.key, data)
			if err != nil {
				return zero, fmt.Errorf("%w: %q: %w", ErrDefaultNotCopyable, p.key, err)
			}
			return value, nil
		}
	}
	data, err := p.codec.Marshal(p.def)
	if err != nil {
		return zero, fmt.Errorf("%w: %q: %w", ErrDefaultNotCopyable, p.key, err)
	}
	var out T
	if err := p.codec.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("%w: %q: %w", ErrDefaultNotCopyable, p.key, err)
	}
	return out, nil
}

// String returns the JSON text of Get, or "undefined" when neither a value
// nor a default is present.
func (p *Persist[T]) String() string {
	if !p.defined && !p.hasDefault {
		return "undefined"
	}
	data, err := p.codec.Marshal(p.Get())
	if err != nil {
		return fmt.Sprintf("%v", p.Get())
	}
	return string(data)
}

// Interface returns Get as an any, or nil when neither a value nor a default
// is present.
func (p *Persist[T]) Interface() any {
	if !p.defined && !p.hasDefault {
		return nil
	}
	return p.Get()
}

// Number coerces Get to a float64. Numbers, numeric strings and booleans
// (1 or 0) convert; anything else reports false.
func (p *Persist[T]) Number() (float64, bool) {
	v := p.Interface()
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
