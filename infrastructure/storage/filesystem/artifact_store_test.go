package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/recon-go/domain/artifact"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/storetest"
)

func TestArtifactStore(t *testing.T) {
	storetest.ArtifactStore(t, func(t *testing.T) artifact.Store {
		s, err := NewArtifactStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewArtifactStore() error = %v", err)
		}
		return s
	})
}

func TestNewArtifactStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scans", "xml")
	if _, err := NewArtifactStore(path); err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestArtifactStore_Layout(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s, err := NewArtifactStore(base)
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}

	ref, err := s.Store(context.Background(), strings.NewReader("<nmaprun/>"), artifact.StoreOptions{Name: "a.xml"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	for _, name := range []string{contentFile, metadataFile} {
		if _, err := os.Stat(filepath.Join(base, ref.ID, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestArtifactStore_PathTraversal(t *testing.T) {
	t.Parallel()

	s, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	if got := s.dir("../../etc"); filepath.Dir(got) != s.basePath {
		t.Errorf("dir() = %s escapes %s", got, s.basePath)
	}
}
