package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		cfg           func(dir string) config.StorageConfig
		wantArtifacts bool
	}{
		{
			name: "defaults",
			cfg:  func(string) config.StorageConfig { return config.Default().Storage },
		},
		{
			name: "sqlite with filesystem artifacts",
			cfg: func(dir string) config.StorageConfig {
				return config.StorageConfig{
					Runs:      config.RunStoreConfig{Driver: "sqlite", DSN: "file:" + filepath.Join(dir, "runs.db")},
					Artifacts: config.ArtifactStoreConfig{Driver: "filesystem", Dir: filepath.Join(dir, "xml")},
				}
			},
			wantArtifacts: true,
		},
		{
			name: "badger on disk",
			cfg: func(dir string) config.StorageConfig {
				return config.StorageConfig{Runs: config.RunStoreConfig{Driver: "badger", Dir: filepath.Join(dir, "badger")}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stores, err := Open(context.Background(), tt.cfg(t.TempDir()))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer func() {
				if err := stores.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}()

			if stores.Runs == nil {
				t.Error("Runs = nil")
			}
			if got := stores.Artifacts != nil; got != tt.wantArtifacts {
				t.Errorf("Artifacts set = %v, want %v", got, tt.wantArtifacts)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	tests := []config.StorageConfig{
		{Runs: config.RunStoreConfig{Driver: "cassandra"}},
		{Artifacts: config.ArtifactStoreConfig{Driver: "ftp"}},
	}
	for _, cfg := range tests {
		if _, err := Open(context.Background(), cfg); !errors.Is(err, ErrUnknownDriver) {
			t.Errorf("Open(%+v) error = %v, want ErrUnknownDriver", cfg, err)
		}
	}
}
