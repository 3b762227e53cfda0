package persist

import (
	"sync"

	"github.com/ztimson/var-perisist/internal/backend"
	"github.com/ztimson/var-perisist/internal/config"
	"github.com/ztimson/var-perisist/pkg/storage"
)

var (
	defaultMu      sync.Mutex
	defaultStorage storage.Storage
)

// DefaultStorage returns the process-wide adapter used when no storage option
// is given. It is opened on first use from the environment configuration
// (see VAR_PERSIST_BACKEND and VAR_PERSIST_DIR) and never closed. When it
// cannot be opened every operation on it fails with storage.ErrUnavailable.
func DefaultStorage() storage.Storage {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStorage == nil {
		defaultStorage = openDefaultStorage()
	}
	return defaultStorage
}

// SetDefaultStorage replaces the process-wide adapter. Values already bound
// keep their adapter. Passing nil restores lazy opening from configuration.
func SetDefaultStorage(s storage.Storage) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStorage = s
}

func openDefaultStorage() storage.Storage {
	cfg, err := config.Load()
	if err != nil {
		return storage.Unavailable(err)
	}
	s, _, err := backend.Open(cfg.Storage, nil)
	if err != nil {
		return storage.Unavailable(err)
	}
	return s
}
