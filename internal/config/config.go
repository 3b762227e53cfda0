// Package config resolves where the process-wide default storage lives.
//
// Resolution order: built-in defaults, then the YAML file named by
// VAR_PERSIST_CONFIG (if set), then individual VAR_PERSIST_* environment
// variables. Only variables that are present override earlier values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendBolt   Backend = "bolt"
)

// ConfigEnv names the YAML file loaded by Load.
const ConfigEnv = "VAR_PERSIST_CONFIG"

// Config is the top-level configuration.
type Config struct {
	Storage Storage `yaml:"storage" envPrefix:"VAR_PERSIST_"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"VAR_PERSIST_LOG_LEVEL"`
}

// Storage configures the default adapter.
type Storage struct {
	// Backend selects the implementation. Default: file.
	Backend Backend `yaml:"backend" env:"BACKEND"`

	// Dir holds the backend's data file. Default: <user config dir>/var-persist.
	Dir string `yaml:"dir" env:"DIR"`

	// MaxBytes caps the memory backend. Zero means unlimited.
	MaxBytes int `yaml:"max_bytes" env:"MAX_BYTES"`
}

// Default returns the built-in configuration.
func Default() Config {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return Config{
		Storage: Storage{
			Backend: BackendFile,
			Dir:     filepath.Join(dir, "var-persist"),
		},
		LogLevel: "warn",
	}
}

// Load resolves configuration from defaults, the optional YAML file, and the
// environment, then validates it.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(ConfigEnv)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile resolves configuration from defaults and the YAML file at path,
// without consulting the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// ParseEnv overlays VAR_PERSIST_* environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite, BackendBolt:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			errs = append(errs, fmt.Errorf("storage.dir is required for backend %q", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend))
	}
	if c.Storage.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("storage.max_bytes must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Path returns the data file the backend should open. Empty for memory.
func (s Storage) Path() string {
	switch s.Backend {
	case BackendFile:
		return filepath.Join(s.Dir, "storage.json")
	case BackendSQLite:
		return filepath.Join(s.Dir, "storage.db")
	case BackendBolt:
		return filepath.Join(s.Dir, "storage.bolt")
	default:
		return ""
	}
}

// ParseLevel maps a level name to a slog.Level. Empty means warn.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log_level: %q", name)
	}
}
