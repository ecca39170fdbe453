package storetest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/felixgeelhaar/recon-go/domain/artifact"
)

// ArtifactFactory returns an empty artifact store.
type ArtifactFactory func(t *testing.T) artifact.Store

const sampleXML = `<?xml version="1.0"?><nmaprun><host><status state="up"/></host></nmaprun>`

// ArtifactStore exercises the artifact.Store contract.
func ArtifactStore(t *testing.T, newStore ArtifactFactory) {
	t.Helper()

	t.Run("store and retrieve", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		opts := artifact.ScanOptions("run-1", "10.0.0.1", "ping_sweep", "10.0.0.1_ping_sweep.xml")
		ref, err := s.Store(ctx, strings.NewReader(sampleXML), opts)
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if !ref.IsValid() || ref.Size != int64(len(sampleXML)) || ref.Checksum == "" {
			t.Errorf("Store() ref = %+v", ref)
		}

		rc, err := s.Retrieve(ctx, ref)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(data) != sampleXML {
			t.Errorf("Retrieve() = %q", data)
		}

		meta, err := s.Metadata(ctx, artifact.Ref{ID: ref.ID})
		if err != nil {
			t.Fatalf("Metadata() error = %v", err)
		}
		if meta.Name != opts.Name || meta.ContentType != artifact.ContentTypeXML || meta.Metadata[artifact.MetaRunID] != "run-1" {
			t.Errorf("Metadata() = %+v", meta)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ref, err := s.Store(ctx, strings.NewReader("x"), artifact.StoreOptions{})
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if ok, _ := s.Exists(ctx, ref); !ok {
			t.Error("Exists() = false after Store")
		}
		if err := s.Delete(ctx, ref); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if ok, _ := s.Exists(ctx, ref); ok {
			t.Error("Exists() = true after Delete")
		}
		if err := s.Delete(ctx, ref); !errors.Is(err, artifact.ErrArtifactNotFound) {
			t.Errorf("Delete() twice error = %v, want ErrArtifactNotFound", err)
		}
		if _, err := s.Retrieve(ctx, ref); !errors.Is(err, artifact.ErrArtifactNotFound) {
			t.Errorf("Retrieve() error = %v, want ErrArtifactNotFound", err)
		}
	})

	t.Run("invalid ref", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Retrieve(ctx, artifact.Ref{}); !errors.Is(err, artifact.ErrInvalidRef) {
			t.Errorf("Retrieve() error = %v, want ErrInvalidRef", err)
		}
		if _, err := s.Metadata(ctx, artifact.Ref{}); !errors.Is(err, artifact.ErrInvalidRef) {
			t.Errorf("Metadata() error = %v, want ErrInvalidRef", err)
		}
	})
}
