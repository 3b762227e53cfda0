package persist

import (
	"context"
	"fmt"
)

// working returns the value mutators start from. An undefined value starts
// from a copy of the default so the default itself is never modified.
func (p *Persist[T]) working() (T, error) {
	if p.defined {
		return p.value, nil
	}
	return p.cloneDefault()
}

// Update applies fn to the value in place and saves.
func (p *Persist[T]) Update(fn func(v *T)) error {
	return p.Mutate(func(v *T) error {
		fn(v)
		return nil
	})
}

// Mutate applies fn to the value and saves. When fn returns an error nothing
// is stored and the error is returned as is; changes fn already made inside
// a shared map or slice remain in memory.
func (p *Persist[T]) Mutate(fn func(v *T) error) error {
	v, err := p.working()
	if err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return p.set(context.Background(), v)
}

// Invoke runs fn against the value, saves, and returns fn's result. It is the
// trampoline for behaviors that mutate the value and report something back,
// such as a method with a pointer receiver.
func Invoke[T, R any](p *Persist[T], fn func(v *T) R) (R, error) {
	var result R
	err := p.Mutate(func(v *T) error {
		result = fn(v)
		return nil
	})
	return result, err
}

// Push appends items to a slice value, saves, and returns the new length.
func Push[E any](p *Persist[[]E], items ...E) (int, error) {
	return Invoke(p, func(v *[]E) int {
		*v = append(*v, items...)
		return len(*v)
	})
}

// RemoveAt removes the element at index i from a slice value, saves, and
// returns the removed element.
func RemoveAt[E any](p *Persist[[]E], i int) (E, error) {
	var removed E
	err := p.Mutate(func(v *[]E) error {
		if i < 0 || i >= len(*v) {
			return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(*v))
		}
		removed = (*v)[i]
		*v = append((*v)[:i], (*v)[i+1:]...)
		return nil
	})
	return removed, err
}

// Put stores value under key in a map value and saves. A nil map is
// allocated first.
func Put[K comparable, V any](p *Persist[map[K]V], key K, value V) error {
	return p.Update(func(m *map[K]V) {
		if *m == nil {
			*m = make(map[K]V)
		}
		(*m)[key] = value
	})
}

// Delete removes key from a map value, saves, and reports whether the key was
// present.
func Delete[K comparable, V any](p *Persist[map[K]V], key K) (bool, error) {
	return Invoke(p, func(m *map[K]V) bool {
		_, ok := (*m)[key]
		delete(*m, key)
		return ok
	})
}
