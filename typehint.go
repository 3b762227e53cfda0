package persist

import (
	"fmt"
	"reflect"

	"github.com/ztimson/var-perisist/internal/hydrate"
)

// TypeHint turns stored structural data back into a T. It is consulted on
// load when the stored value is a non-null object or array.
type TypeHint[T any] interface {
	Restore(key string, data any) (T, error)
}

// TypeHintFunc adapts a function to TypeHint.
type TypeHintFunc[T any] func(key string, data any) (T, error)

// Restore implements TypeHint.
func (f TypeHintFunc[T]) Restore(key string, data any) (T, error) {
	return f(key, data)
}

// As returns a TypeHint that decodes stored data into S and hands it out as a
// T. S is typically a concrete type (often a pointer) implementing the
// interface T. Post hooks run after decoding, in order.
func As[S, T any](postHooks ...func(key string, s *S) error) TypeHint[T] {
	hooks := make([]hydrate.PostHook[S], 0, len(postHooks))
	for _, hook := range postHooks {
		if hook != nil {
			hooks = append(hooks, hook)
		}
	}
	decoder := hydrate.NewDecoder(hooks...)
	return TypeHintFunc[T](func(key string, data any) (T, error) {
		var zero T
		decoded, err := decoder.Decode(key, data)
		if err != nil {
			return zero, err
		}
		value, ok := any(decoded).(T)
		if !ok {
			return zero, fmt.Errorf("persist: %T is not a %s", decoded, reflect.TypeFor[T]())
		}
		return value, nil
	})
}
