package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is returned when a write would exceed the adapter's capacity.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrUnavailable marks an adapter that cannot be used at all (disabled,
	// blocked, or failed to open).
	ErrUnavailable = errors.New("storage: unavailable")

	// ErrCorrupt is returned when a stored record fails its integrity check.
	ErrCorrupt = errors.New("storage: corrupt record")

	// ErrClosed is returned by adapters used after Close.
	ErrClosed = errors.New("storage: closed")
)

// Storage is the capability set a persisted value needs from a backend.
//
// Get reports ok=false for a missing key; that is not an error. Remove of a
// missing key is a no-op. Keys returns every key in the adapter's enumeration
// order.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
	Len() (int, error)
}

// Clear removes every key the adapter enumerates. Failures on individual keys
// are joined and returned after all keys were attempted.
func Clear(s Storage) error {
	if s == nil {
		return fmt.Errorf("storage: adapter is required")
	}
	keys, err := s.Keys()
	if err != nil {
		return fmt.Errorf("storage: enumerate: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if err := s.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("storage: remove %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Unavailable returns an adapter whose every operation fails with an error
// wrapping ErrUnavailable and cause.
func Unavailable(cause error) Storage {
	return unavailable{cause: cause}
}

type unavailable struct {
	cause error
}

func (u unavailable) err() error {
	if u.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u unavailable) Get(string) (string, bool, error) { return "", false, u.err() }
func (u unavailable) Set(string, string) error         { return u.err() }
func (u unavailable) Remove(string) error              { return u.err() }
func (u unavailable) Keys() ([]string, error)          { return nil, u.err() }
func (u unavailable) Len() (int, error)                { return 0, u.err() }
