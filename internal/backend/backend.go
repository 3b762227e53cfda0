// Package backend opens a storage.Storage from configuration. It is what the
// process-wide default adapter and the varpersist CLI use to pick a backend.
package backend

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ztimson/var-perisist/internal/config"
	"github.com/ztimson/var-perisist/pkg/storage"
	"github.com/ztimson/var-perisist/pkg/storage/bolt"
	"github.com/ztimson/var-perisist/pkg/storage/file"
	"github.com/ztimson/var-perisist/pkg/storage/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open constructs the adapter described by cfg. The returned Closer releases
// file handles; it is a no-op for the memory backend.
func Open(cfg config.Storage, logger *slog.Logger) (storage.Storage, io.Closer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("backend", string(cfg.Backend))

	switch cfg.Backend {
	case config.BackendMemory:
		var opts []storage.MemoryOption
		if cfg.MaxBytes > 0 {
			opts = append(opts, storage.WithMaxBytes(cfg.MaxBytes))
		}
		return storage.NewMemory(opts...), nopCloser{}, nil

	case config.BackendFile:
		s, err := file.Open(cfg.Path(), file.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("backend: %w", err)
		}
		return s, nopCloser{}, nil

	case config.BackendSQLite:
		if err := ensureDir(cfg.Dir); err != nil {
			return nil, nil, err
		}
		s, err := sqlite.Open(sqlite.Config{Path: cfg.Path(), Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("backend: %w", err)
		}
		return s, s, nil

	case config.BackendBolt:
		if err := ensureDir(cfg.Dir); err != nil {
			return nil, nil, err
		}
		s, err := bolt.Open(cfg.Path(), bolt.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("backend: %w", err)
		}
		return s, s, nil

	default:
		return nil, nil, fmt.Errorf("backend: unknown backend %q", cfg.Backend)
	}
}
