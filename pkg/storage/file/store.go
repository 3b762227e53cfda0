// Package file provides a storage.Storage backed by a single JSON document on
// disk. It is the default backend: values survive process restarts the same
// way browser local storage survives a page reload.
//
// The document is an ordered list of entries so enumeration order is stable
// across restarts. Reads accept comments and trailing commas, so the file may
// be edited by hand. Every write rewrites the document atomically (temp file
// and rename in the same directory).
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/ztimson/var-perisist/pkg/storage"
)

type document struct {
	Entries []entry `json:"entries"`
}

type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store is a file-backed adapter. It is safe for concurrent use within one
// process; separate processes writing the same file race (last write wins).
type Store struct {
	mu      sync.RWMutex
	path    string
	perm    fs.FileMode
	logger  *slog.Logger
	entries []entry
	index   map[string]int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for write diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPerm sets the permission bits for the document file (default 0600).
func WithPerm(perm fs.FileMode) Option {
	return func(s *Store) {
		s.perm = perm
	}
}

// Open loads the document at path, creating the parent directory if needed.
// A missing file is an empty store; a malformed file is an error.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("file: path is required")
	}

	s := &Store{
		path:   filepath.Clean(path),
		perm:   0o600,
		logger: slog.New(slog.DiscardHandler),
		index:  map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("file: create directory: %w", err)
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}

	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	for _, e := range doc.Entries {
		if i, ok := s.index[e.Key]; ok {
			s.entries[i].Value = e.Value
			continue
		}
		s.index[e.Key] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[key]
	if !ok {
		return "", false, nil
	}
	return s.entries[i].Value, true, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]entry(nil), s.entries...)
	if i, ok := s.index[key]; ok {
		next[i].Value = value
	} else {
		next = append(next, entry{Key: key, Value: value})
	}
	if err := s.flush(next); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key]
	if !ok {
		return nil
	}
	next := make([]entry, 0, len(s.entries)-1)
	next = append(next, s.entries[:i]...)
	next = append(next, s.entries[i+1:]...)
	if err := s.flush(next); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) commit(entries []entry) {
	s.entries = entries
	s.index = make(map[string]int, len(entries))
	for i, e := range entries {
		s.index[e.Key] = i
	}
}

// flush writes entries to a temp file and renames it over the document so a
// crash never leaves a half-written file behind.
func (s *Store) flush(entries []entry) error {
	if entries == nil {
		entries = []entry{}
	}
	payload, err := json.MarshalIndent(document{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close %s: %w", s.path, err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		cleanup()
		return fmt.Errorf("file: chmod %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}
	s.logger.Debug("storage document written", "path", s.path, "entries", len(entries))
	return nil
}

var _ storage.Storage = (*Store)(nil)
