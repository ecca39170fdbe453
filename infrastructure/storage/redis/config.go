// Package redis provides a Redis-backed run store.
package redis

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// Config holds the connection settings for the run store.
type Config struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces run keys: "recon:" yields "recon:run:<id>" and
	// the "recon:runs" index.
	KeyPrefix string

	// Timeout bounds dialing and each socket read or write.
	Timeout time.Duration
}

// DefaultConfig points at a local Redis under the "recon:" namespace.
func DefaultConfig() Config {
	return Config{
		Address:   "localhost:6379",
		KeyPrefix: "recon:",
		Timeout:   3 * time.Second,
	}
}

// ConfigFor overlays the configured run store settings on the defaults. A
// table name becomes the key prefix; a trailing colon is added when absent.
func ConfigFor(c config.RunStoreConfig) Config {
	cfg := DefaultConfig()
	if c.Address != "" {
		cfg.Address = c.Address
	}
	cfg.Password = c.Password
	if c.Table != "" {
		cfg.KeyPrefix = c.Table
		if !strings.HasSuffix(cfg.KeyPrefix, ":") {
			cfg.KeyPrefix += ":"
		}
	}
	return cfg
}

// options translates the settings for go-redis. A run store issues a handful
// of commands per turn, so the pool stays small.
func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   2,
		DialTimeout:  c.Timeout,
		ReadTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		PoolSize:     4,
	}
}
