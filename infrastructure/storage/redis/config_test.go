package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/run"
)

func TestConfigFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         config.RunStoreConfig
		wantAddr   string
		wantPrefix string
	}{
		{"defaults", config.RunStoreConfig{Driver: "redis"}, "localhost:6379", "recon:"},
		{"address", config.RunStoreConfig{Address: "cache.internal:6380"}, "cache.internal:6380", "recon:"},
		{"table adds colon", config.RunStoreConfig{Table: "scans"}, "localhost:6379", "scans:"},
		{"table keeps colon", config.RunStoreConfig{Table: "lab:scans:"}, "localhost:6379", "lab:scans:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := ConfigFor(tt.in)
			if cfg.Address != tt.wantAddr {
				t.Errorf("Address = %s, want %s", cfg.Address, tt.wantAddr)
			}
			if cfg.KeyPrefix != tt.wantPrefix {
				t.Errorf("KeyPrefix = %s, want %s", cfg.KeyPrefix, tt.wantPrefix)
			}
		})
	}
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()

	cfg := ConfigFor(config.RunStoreConfig{Password: "secret"})
	opts := cfg.options()
	if opts.Password != "secret" {
		t.Errorf("Password = %q, want secret", opts.Password)
	}
	if opts.DialTimeout != 3*time.Second || opts.ReadTimeout != opts.WriteTimeout {
		t.Errorf("timeouts = %v/%v/%v", opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout)
	}
}

func TestRunStore_Keys(t *testing.T) {
	t.Parallel()

	s := NewRunStoreFromClient(nil, "recon:")
	if got := s.runKey("abc"); got != "recon:run:abc" {
		t.Errorf("runKey() = %s", got)
	}
	if got := s.indexKey(); got != "recon:runs" {
		t.Errorf("indexKey() = %s", got)
	}
}

func TestRunStore_InvalidID(t *testing.T) {
	t.Parallel()

	s := NewRunStoreFromClient(nil, "")
	ctx := context.Background()
	if err := s.Save(ctx, &run.Record{}); !errors.Is(err, run.ErrInvalidRunID) {
		t.Errorf("Save() error = %v, want ErrInvalidRunID", err)
	}
	if err := s.Delete(ctx, ""); !errors.Is(err, run.ErrInvalidRunID) {
		t.Errorf("Delete() error = %v, want ErrInvalidRunID", err)
	}
}
