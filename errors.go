package persist

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey is returned by New when the key is empty.
	ErrEmptyKey = errors.New("persist: key must not be empty")

	// ErrNotObject is returned by property accessors when the value is not a
	// map, struct, slice or array.
	ErrNotObject = errors.New("persist: value is not an object")

	// ErrUnknownProperty is returned when a property name does not resolve.
	ErrUnknownProperty = errors.New("persist: unknown property")

	// ErrIndexOutOfRange is returned by index based mutators.
	ErrIndexOutOfRange = errors.New("persist: index out of range")

	// ErrLossyNumber is returned when a number would be truncated or overflow
	// the property it is assigned to.
	ErrLossyNumber = errors.New("persist: number does not fit property")

	// ErrDefaultNotCopyable is returned by New when the default cannot be
	// copied, which would let mutations reach the configured default.
	ErrDefaultNotCopyable = errors.New("persist: default cannot be copied")
)

// MalformedDataError reports stored text that could not be decoded. It is
// never treated as a missing value.
type MalformedDataError struct {
	Key  string
	Data string
	Err  error
}

func (e *MalformedDataError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("persist: malformed data for key %q: %v", e.Key, e.Err)
}

func (e *MalformedDataError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WriteError reports a failed write to the storage adapter. The in-memory
// value is left as it was set.
type WriteError struct {
	Key string
	// Op is one of "encode", "set" or "remove".
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("persist: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
