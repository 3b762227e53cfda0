// Package storagetest holds the behavioural contract every storage.Storage
// implementation must satisfy. Backend packages call Run from their tests.
package storagetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ztimson/var-perisist/pkg/storage"
)

// Factory returns a fresh, empty adapter. Cleanup is the caller's job
// (typically t.Cleanup inside the factory).
type Factory func(t *testing.T) storage.Storage

// Options tunes expectations that legitimately differ between backends.
type Options struct {
	// InsertionOrder asserts Keys returns keys in first-write order. Backends
	// that enumerate in sorted order leave it false and get a sorted check.
	InsertionOrder bool
}

// Run executes the adapter contract against adapters produced by factory.
func Run(t *testing.T, factory Factory, opts Options) {
	t.Helper()

	t.Run("missing key is absent", func(t *testing.T) {
		s := factory(t)
		value, ok, err := s.Get("missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Set("theme", `"light"`))
		value, ok, err := s.Get("theme")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `"light"`, value)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Set("counter", "1"))
		require.NoError(t, s.Set("counter", "2"))
		value, ok, err := s.Get("counter")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "2", value)

		n, err := s.Len()
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("empty value is present", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Set("blank", ""))
		_, ok, err := s.Get("blank")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("remove", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Set("a", "1"))
		require.NoError(t, s.Remove("a"))
		_, ok, err := s.Get("a")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Remove("never-set"))
	})

	t.Run("keys and len", func(t *testing.T) {
		s := factory(t)
		for _, key := range []string{"b", "c", "a"} {
			require.NoError(t, s.Set(key, "{}"))
		}
		require.NoError(t, s.Set("b", "[]"))

		keys, err := s.Keys()
		require.NoError(t, err)
		if opts.InsertionOrder {
			require.Equal(t, []string{"b", "c", "a"}, keys)
		} else {
			require.Equal(t, []string{"a", "b", "c"}, keys)
		}

		n, err := s.Len()
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("clear", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Set("x", "1"))
		require.NoError(t, s.Set("y", "2"))
		require.NoError(t, storage.Clear(s))

		n, err := s.Len()
		require.NoError(t, err)
		require.Zero(t, n)
		keys, err := s.Keys()
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("unicode and json payloads", func(t *testing.T) {
		s := factory(t)
		payload := `{"name":"Zoë","tags":["α","β"],"n":1.5,"ok":true,"nil":null}`
		require.NoError(t, s.Set("ключ", payload))
		value, ok, err := s.Get("ключ")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, payload, value)
	})
}
