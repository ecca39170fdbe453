// Package sqlite provides a SQLite-backed run store.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

var (
	ErrConnectionFailed = errors.New("sqlite: connection failed")
	ErrMigrationFailed  = errors.New("sqlite: migration failed")
)

// Config configures the SQLite run store.
type Config struct {
	// DSN is a go-sqlite3 data source name, e.g. "file:runs.db?mode=rwc".
	DSN string

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig keeps runs in recon.db in the working directory.
func DefaultConfig() Config {
	return Config{
		DSN:         "file:recon.db?mode=rwc",
		BusyTimeout: 5 * time.Second,
	}
}

// ConfigFor overlays the configured DSN on the defaults. A bare path is
// accepted and opened read-write.
func ConfigFor(c config.RunStoreConfig) Config {
	cfg := DefaultConfig()
	switch {
	case c.DSN == "":
	case hasScheme(c.DSN):
		cfg.DSN = c.DSN
	default:
		cfg.DSN = "file:" + c.DSN + "?mode=rwc"
	}
	return cfg
}

func hasScheme(dsn string) bool {
	return strings.HasPrefix(dsn, "file:") || dsn == ":memory:"
}

// openDB opens the database in WAL mode behind a single connection. The
// engine persists from one goroutine per run, and SQLite serializes writers
// anyway.
func openDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}
