// Package bolt provides a storage.Storage backed by a go.etcd.io/bbolt
// database file.
//
// Each value is stored as a CBOR record (Core Deterministic Encoding) carrying
// the value text, its BLAKE3-256 digest, and the write time. Get verifies the
// digest and fails with storage.ErrCorrupt on mismatch rather than returning
// damaged text. Keys enumerate in byte order.
package bolt

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"go.etcd.io/bbolt"

	"github.com/ztimson/var-perisist/pkg/storage"
)

// DefaultBucket is used when no bucket is configured.
const DefaultBucket = "var-persist"

type record struct {
	Value     string `cbor:"value"`
	Sum       []byte `cbor:"sum"`
	UpdatedAt int64  `cbor:"updated_at"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bolt: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("bolt: CBOR decoder initialization failed: " + err.Error())
	}
}

// Store is a bbolt-backed adapter. It is safe for concurrent use.
type Store struct {
	db      *bbolt.DB
	bucket  []byte
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBucket overrides the bucket name.
func WithBucket(name string) Option {
	return func(s *Store) {
		if strings.TrimSpace(name) != "" {
			s.bucket = []byte(name)
		}
	}
}

// WithTimeout bounds how long Open waits for the file lock (default 1s).
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithLogger sets the logger for open/close messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens the database at path and ensures the bucket exists.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}

	s := &Store{
		bucket:  []byte(DefaultBucket),
		timeout: time.Second,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", cleanPath, err)
	}
	s.db = db

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create bucket %q: %w", s.bucket, err)
	}

	s.logger.Info("bolt storage opened", "path", cleanPath, "bucket", string(s.bucket))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("bolt: close: %w", err)
	}
	s.logger.Info("bolt storage closed", "path", s.db.Path())
	return nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := s.bucketOf(tx)
		if err != nil {
			return err
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		value, found = rec.Value, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("bolt: get %q: %w", key, wrapClosed(err))
	}
	return value, found, nil
}

func (s *Store) Set(key, value string) error {
	sum := blake3.Sum256([]byte(value))
	payload, err := encMode.Marshal(record{
		Value:     value,
		Sum:       sum[:],
		UpdatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("bolt: encode %q: %w", key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.bucketOf(tx)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("bolt: set %q: %w", key, wrapClosed(err))
	}
	return nil
}

func (s *Store) Remove(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.bucketOf(tx)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt: remove %q: %w", key, wrapClosed(err))
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	keys := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := s.bucketOf(tx)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: keys: %w", wrapClosed(err))
	}
	return keys, nil
}

func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := s.bucketOf(tx)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt: len: %w", wrapClosed(err))
	}
	return n, nil
}

func (s *Store) bucketOf(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := tx.Bucket(s.bucket)
	if b == nil {
		return nil, fmt.Errorf("bucket %q is missing", s.bucket)
	}
	return b, nil
}

func decodeRecord(raw []byte) (record, error) {
	var rec record
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return record{}, fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
	}
	sum := blake3.Sum256([]byte(rec.Value))
	if !bytes.Equal(sum[:], rec.Sum) {
		return record{}, fmt.Errorf("%w: digest mismatch", storage.ErrCorrupt)
	}
	return rec, nil
}

func wrapClosed(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %w", storage.ErrClosed, err)
	}
	return err
}

var _ storage.Storage = (*Store)(nil)
