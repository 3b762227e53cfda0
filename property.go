package persist

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// SetProperty assigns v to a top-level property of an object value and
// saves. Maps are addressed by key, structs by JSON name or field name, and
// slices and arrays by decimal index. v must be assignable, or numerically
// convertible, to the property type.
func (p *Persist[T]) SetProperty(name string, v any) error {
	value, err := p.working()
	if err != nil {
		return err
	}
	root := reflect.ValueOf(&value).Elem()
	if err := setProperty(root, name, v); err != nil {
		return fmt.Errorf("persist: set %q on %q: %w", name, p.key, err)
	}
	return p.set(context.Background(), value)
}

// Property reads a top-level property of an object value. Nested objects are
// returned as live, unobserved references.
func (p *Persist[T]) Property(name string) (any, bool) {
	value := p.Get()
	target, ok := container(reflect.ValueOf(&value).Elem())
	if !ok {
		return nil, false
	}
	field, err := lookupProperty(target, name)
	if err != nil {
		return nil, false
	}
	return field.Interface(), true
}

// container unwraps interfaces and pointers down to a map, struct, slice or
// array.
func container(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		return v, !v.IsNil()
	case reflect.Struct, reflect.Slice, reflect.Array:
		return v, true
	}
	return reflect.Value{}, false
}

func lookupProperty(v reflect.Value, name string) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Map:
		key, err := mapKey(v.Type().Key(), name)
		if err != nil {
			return reflect.Value{}, err
		}
		field := v.MapIndex(key)
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		return field, nil
	case reflect.Struct:
		index, ok := fieldIndex(v.Type(), name)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		return v.Field(index), nil
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= v.Len() {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrIndexOutOfRange, name)
		}
		return v.Index(i), nil
	}
	return reflect.Value{}, ErrNotObject
}

func setProperty(root reflect.Value, name string, v any) error {
	target, ok := container(root)
	if !ok {
		return ErrNotObject
	}
	switch target.Kind() {
	case reflect.Map:
		key, err := mapKey(target.Type().Key(), name)
		if err != nil {
			return err
		}
		value, err := assignable(v, target.Type().Elem())
		if err != nil {
			return err
		}
		target.SetMapIndex(key, value)
		return nil
	}

	// Structs and arrays held in an interface are not addressable: update a
	// copy and put it back.
	if !target.CanAddr() {
		copied := reflect.New(target.Type()).Elem()
		copied.Set(target)
		if err := assignField(copied, name, v); err != nil {
			return err
		}
		return replaceContainer(root, copied)
	}
	return assignField(target, name, v)
}

func assignField(target reflect.Value, name string, v any) error {
	field, err := lookupProperty(target, name)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	value, err := assignable(v, field.Type())
	if err != nil {
		return err
	}
	field.Set(value)
	return nil
}

// replaceContainer stores updated where container found the original value.
func replaceContainer(root, updated reflect.Value) error {
	v := root
	for {
		switch v.Kind() {
		case reflect.Interface:
			inner := v.Elem()
			if inner.Kind() == reflect.Pointer || inner.Kind() == reflect.Interface {
				v = inner
				continue
			}
			if !v.CanSet() {
				return ErrNotObject
			}
			v.Set(updated)
			return nil
		case reflect.Pointer:
			v = v.Elem()
			continue
		}
		if !v.CanSet() {
			return ErrNotObject
		}
		v.Set(updated)
		return nil
	}
}

func mapKey(keyType reflect.Type, name string) (reflect.Value, error) {
	switch keyType.Kind() {
	case reflect.String:
		return reflect.ValueOf(name).Convert(keyType), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(name, 10, keyType.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		return reflect.ValueOf(n).Convert(keyType), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(name, 10, keyType.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		return reflect.ValueOf(n).Convert(keyType), nil
	}
	return reflect.Value{}, fmt.Errorf("persist: unsupported map key type %s", keyType)
}

// fieldIndex resolves an exported struct field by JSON name, then by exact
// Go name, then case-insensitively.
func fieldIndex(t reflect.Type, name string) (int, bool) {
	fold := -1
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if tag != "" && tag == name {
			return i, true
		}
		if field.Name == name {
			return i, true
		}
		if fold < 0 && (strings.EqualFold(field.Name, name) || (tag != "" && strings.EqualFold(tag, name))) {
			fold = i
		}
	}
	return fold, fold >= 0
}

func assignable(v any, to reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(to), nil
	}
	value := reflect.ValueOf(v)
	if value.Type().AssignableTo(to) {
		return value, nil
	}
	if isNumeric(value.Kind()) && isNumeric(to.Kind()) {
		return convertNumber(value, to)
	}
	if value.Kind() == to.Kind() && value.Type().ConvertibleTo(to) {
		return value.Convert(to), nil
	}
	return reflect.Value{}, fmt.Errorf("persist: cannot assign %T to %s", v, to)
}

// convertNumber converts between numeric kinds, refusing fractions written to
// integers and values outside the target's range.
func convertNumber(value reflect.Value, to reflect.Type) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	lossy := fmt.Errorf("%w: %v as %s", ErrLossyNumber, value.Interface(), to)

	switch {
	case value.CanFloat():
		f := value.Float()
		switch {
		case out.CanInt():
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, lossy
			}
			out.SetInt(int64(f))
		case out.CanUint():
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, lossy
			}
			out.SetUint(uint64(f))
		default:
			if out.OverflowFloat(f) {
				return reflect.Value{}, lossy
			}
			out.SetFloat(f)
		}
	case value.CanInt():
		n := value.Int()
		switch {
		case out.CanInt():
			if out.OverflowInt(n) {
				return reflect.Value{}, lossy
			}
			out.SetInt(n)
		case out.CanUint():
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, lossy
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
	case value.CanUint():
		n := value.Uint()
		switch {
		case out.CanInt():
			if n > math.MaxInt64 || out.OverflowInt(int64(n)) {
				return reflect.Value{}, lossy
			}
			out.SetInt(int64(n))
		case out.CanUint():
			if out.OverflowUint(n) {
				return reflect.Value{}, lossy
			}
			out.SetUint(n)
		default:
			out.SetFloat(float64(n))
		}
	default:
		return reflect.Value{}, lossy
	}
	return out, nil
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
