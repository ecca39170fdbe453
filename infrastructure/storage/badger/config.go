// Package badger provides an embedded BadgerDB run store.
package badger

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// ErrConnectionFailed is returned when the database cannot be opened.
var ErrConnectionFailed = errors.New("badger: connection failed")

// Config configures the embedded run store. An empty Dir keeps the database
// in memory.
type Config struct {
	Dir       string
	KeyPrefix string

	// GCInterval spaces value-log garbage collection. Zero disables it.
	GCInterval time.Duration
}

// InMemory reports whether the store lives only for the process.
func (c Config) InMemory() bool { return c.Dir == "" }

// ConfigFor maps the configured run store settings. Run records are small
// and rewritten every turn, so GC runs every ten minutes on disk.
func ConfigFor(c config.RunStoreConfig) Config {
	cfg := Config{Dir: c.Dir, KeyPrefix: "recon:"}
	if c.Table != "" {
		cfg.KeyPrefix = c.Table + ":"
	}
	if !cfg.InMemory() {
		cfg.GCInterval = 10 * time.Minute
	}
	return cfg
}

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory()).
		WithSyncWrites(!cfg.InMemory()).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}
