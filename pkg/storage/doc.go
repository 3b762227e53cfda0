// Package storage defines the key-value adapter contract that persisted values
// are written through, plus the in-memory adapter used by tests, examples, and
// the "memory" backend.
//
// Responsibilities:
//   - Storage only gets, sets, removes, and enumerates string values by key.
//   - Values are opaque text; encoding is owned by the caller.
//   - "Last write wins" is the only consistency guarantee.
//
// Concrete backends live in sub-packages:
//
//	file   - single JSON document on disk
//	sqlite - modernc.org/sqlite table
//	bolt   - go.etcd.io/bbolt bucket with integrity digests
//
// backend.Open selects one of them from configuration.
package storage
