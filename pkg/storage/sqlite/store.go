// Package sqlite provides a storage.Storage backed by a single SQLite table,
// using the pure-Go modernc.org/sqlite driver.
//
// Keys enumerate in first-insertion order: each row carries a sequence number
// assigned on insert and kept across overwrites.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ztimson/var-perisist/pkg/storage"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "var_persist"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the parameters for opening a Store. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// Table names the key-value table. Defaults to DefaultTable.
	Table string

	// Logger receives open/close messages. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Store is a SQLite-backed adapter. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	table  string
	path   string
	logger *slog.Logger

	getStmt    string
	setStmt    string
	removeStmt string
	keysStmt   string
	lenStmt    string
}

// Open opens (creating if needed) the database and ensures the table exists.
// The caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite: Path is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", table)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}
	// SQLite serialises writers anyway; one connection keeps ":memory:"
	// databases coherent and avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		table:  table,
		path:   cfg.Path,
		logger: logger,
	}
	s.prepareStatements()

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite storage opened", "path", cfg.Path, "table", table)
	return s, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + params.Encode()
}

func (s *Store) prepareStatements() {
	s.getStmt = fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.table)
	s.setStmt = fmt.Sprintf(`
INSERT INTO %[1]s (key, value, seq, updated_at)
VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM %[1]s), ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.table)
	s.removeStmt = fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table)
	s.keysStmt = fmt.Sprintf(`SELECT key FROM %s ORDER BY seq`, s.table)
	s.lenStmt = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
}

func (s *Store) ensureSchema() error {
	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    seq INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);`, s.table)
	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("sqlite: ensure table %s: %w", s.table, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("sqlite storage close error", "path", s.path, "error", err)
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite storage closed", "path", s.path)
	return nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(s.getStmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get %q: %w", key, wrapClosed(err))
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	if _, err := s.db.Exec(s.setStmt, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, wrapClosed(err))
	}
	return nil
}

func (s *Store) Remove(key string) error {
	if _, err := s.db.Exec(s.removeStmt, key); err != nil {
		return fmt.Errorf("sqlite: remove %q: %w", key, wrapClosed(err))
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(s.keysStmt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", wrapClosed(err))
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", err)
	}
	return keys, nil
}

func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(s.lenStmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: len: %w", wrapClosed(err))
	}
	return n, nil
}

func wrapClosed(err error) error {
	if err != nil && strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %w", storage.ErrClosed, err)
	}
	return err
}

var _ storage.Storage = (*Store)(nil)
