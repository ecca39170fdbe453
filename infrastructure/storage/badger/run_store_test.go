package badger

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/storetest"
)

func TestRunStore(t *testing.T) {
	t.Parallel()

	storetest.RunStore(t, func(t *testing.T) run.Store {
		s, err := NewRunStore(ConfigFor(config.RunStoreConfig{}))
		if err != nil {
			t.Fatalf("NewRunStore() error = %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRunStore_Persists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewRunStore(ConfigFor(config.RunStoreConfig{Dir: dir}))
	if err != nil {
		t.Fatalf("NewRunStore() error = %v", err)
	}
	rec := run.NewRecord("r1", "10.0.0.1", "simple_recon", "", 30, time.Now())
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	reopened, err := NewRunStore(ConfigFor(config.RunStoreConfig{Dir: dir}))
	if err != nil {
		t.Fatalf("NewRunStore() reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Target != "10.0.0.1" {
		t.Errorf("Target = %s, want 10.0.0.1", got.Target)
	}
}

func TestRunStore_KeyPrefixIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewRunStore(ConfigFor(config.RunStoreConfig{}))
	if err != nil {
		t.Fatalf("NewRunStore() error = %v", err)
	}
	defer s.Close()

	other := NewRunStoreFromDB(s.db, "other:")
	if err := other.Save(ctx, run.NewRecord("x", "h", "g", "", 1, time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if n, _ := s.Count(ctx, run.ListFilter{}); n != 0 {
		t.Errorf("Count() = %d, want 0 across prefixes", n)
	}
}

func TestConfigFor(t *testing.T) {
	t.Parallel()

	mem := ConfigFor(config.RunStoreConfig{})
	if !mem.InMemory() || mem.GCInterval != 0 || mem.KeyPrefix != "recon:" {
		t.Errorf("ConfigFor(empty) = %+v", mem)
	}

	disk := ConfigFor(config.RunStoreConfig{Dir: "/var/lib/recon", Table: "lab"})
	if disk.InMemory() || disk.GCInterval == 0 {
		t.Errorf("ConfigFor(dir) = %+v, want on-disk with GC", disk)
	}
	if disk.KeyPrefix != "lab:" {
		t.Errorf("KeyPrefix = %s, want lab:", disk.KeyPrefix)
	}
}
