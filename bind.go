package persist

import "reflect"

// KeyFor derives the conventional key for a field of owner:
// "<TypeName>.<field>". Pointers are dereferenced.
func KeyFor(owner any, field string) string {
	t := reflect.TypeOf(owner)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return field
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return name + "." + field
}

// Bind creates a Persist keyed by KeyFor(owner, field). To use an explicit
// key call New directly.
//
//	type ThemeEngine struct {
//		Current *persist.Persist[string]
//	}
//
//	engine := &ThemeEngine{}
//	engine.Current, err = persist.Bind[string](engine, "current", persist.WithDefault("os"))
func Bind[T any](owner any, field string, opts ...Option) (*Persist[T], error) {
	return New[T](KeyFor(owner, field), opts...)
}
