// Package hydrate turns stored structural data (the JSON data model: maps,
// slices, float64, string, bool, nil) back into typed Go values.
package hydrate

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// PostHook adjusts or validates a value restored for key.
type PostHook[T any] func(key string, v *T) error

// Decoder restores structural data into values of type T.
type Decoder[T any] struct {
	postHooks []PostHook[T]
}

// NewDecoder returns a Decoder that runs hooks, in order, after decoding.
// Nil hooks are ignored.
func NewDecoder[T any](hooks ...PostHook[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, hook := range hooks {
		if hook != nil {
			d.postHooks = append(d.postHooks, hook)
		}
	}
	return d
}

// Decode restores data stored under key. The result never shares maps or
// slices with data.
func (d *Decoder[T]) Decode(key string, data any) (T, error) {
	var zero T
	if data == nil {
		return zero, fmt.Errorf("hydrate: no data for key %q", key)
	}

	buffer, err := json.Marshal(data)
	if err != nil {
		return zero, fmt.Errorf("hydrate: encode key %q: %w", key, err)
	}
	var result T
	if err := json.Unmarshal(buffer, &result); err != nil {
		return zero, fmt.Errorf("hydrate: decode key %q into %s: %w", key, reflect.TypeFor[T](), err)
	}

	for _, hook := range d.postHooks {
		if err := hook(key, &result); err != nil {
			return zero, fmt.Errorf("hydrate: restore key %q: %w", key, err)
		}
	}
	return result, nil
}
