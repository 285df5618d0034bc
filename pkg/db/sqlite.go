// Package db is the persistence adapter for the memory engine: a
// SQLite-backed store whose conditional-write contract (version
// compare-and-swap) is the only concurrency control between sessions.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrVersionConflict is returned when a conditional write lost the race:
// the row changed since it was read. Callers re-read and retry.
var ErrVersionConflict = errors.New("db: version conflict")

// ErrNotFound is returned for missing rows.
var ErrNotFound = errors.New("db: not found")

type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

// NewStore opens (or creates) the SQLite database at dbPath, enables WAL
// mode and runs pending migrations.
func NewStore(dbPath string, logger *log.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// WAL mode for concurrent readers during background extraction writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := RunMigrations(db.DB, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sqlx.DB instance.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
