package storage

import (
	"fmt"
	"sync"
)

// Memory is an in-memory Storage that enumerates keys in first-insertion
// order. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]string
	order    []string
	maxBytes int
	used     int
}

// MemoryOption configures a Memory adapter.
type MemoryOption func(*Memory)

// WithMaxBytes caps the total size of keys plus values. Writes that would
// exceed the cap fail with ErrQuotaExceeded. Zero or negative disables the cap.
func WithMaxBytes(n int) MemoryOption {
	return func(m *Memory) {
		m.maxBytes = n
	}
}

// NewMemory constructs an empty in-memory adapter.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{records: map[string]string{}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	value, ok := m.records[key]
	m.mu.RUnlock()
	return value, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, exists := m.records[key]
	used := m.used + len(value)
	if exists {
		used -= len(previous)
	} else {
		used += len(key)
	}
	if m.maxBytes > 0 && used > m.maxBytes {
		return fmt.Errorf("%w: setting %q needs %d bytes, limit is %d", ErrQuotaExceeded, key, used, m.maxBytes)
	}

	if !exists {
		m.order = append(m.order, key)
	}
	m.records[key] = value
	m.used = used
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.records[key]
	if !ok {
		return nil
	}
	delete(m.records, key)
	m.used -= len(key) + len(value)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
