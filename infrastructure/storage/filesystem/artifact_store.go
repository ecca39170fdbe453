// Package filesystem provides a local directory artifact store.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recon-go/domain/artifact"
)

const (
	contentFile  = "content"
	metadataFile = "metadata.json"
)

// ArtifactStore implements artifact.Store using the local filesystem.
// Each artifact lives in its own directory named by its id.
type ArtifactStore struct {
	basePath string
}

// NewArtifactStore creates the base directory if needed.
func NewArtifactStore(basePath string) (*ArtifactStore, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &ArtifactStore{basePath: basePath}, nil
}

// Store saves content and returns a stable reference.
func (s *ArtifactStore) Store(_ context.Context, content io.Reader, opts artifact.StoreOptions) (artifact.Ref, error) {
	id := uuid.NewString()
	dir := s.dir(id)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return artifact.Ref{}, fmt.Errorf("create artifact path: %w", err)
	}

	size, checksum, err := writeContent(filepath.Join(dir, contentFile), content)
	if err != nil {
		_ = os.RemoveAll(dir)
		return artifact.Ref{}, err
	}

	ref := opts.Apply(artifact.NewRef(id))
	ref.Size = size
	ref.Checksum = checksum

	meta, err := json.Marshal(ref)
	if err != nil {
		_ = os.RemoveAll(dir)
		return artifact.Ref{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), meta, 0600); err != nil {
		_ = os.RemoveAll(dir)
		return artifact.Ref{}, fmt.Errorf("write metadata: %w", err)
	}
	return ref, nil
}

func writeContent(path string, content io.Reader) (int64, string, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return 0, "", fmt.Errorf("create content file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), content)
	if err != nil {
		_ = file.Close()
		return 0, "", fmt.Errorf("write content: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, "", fmt.Errorf("close content file: %w", err)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Retrieve retrieves the content for an artifact reference.
func (s *ArtifactStore) Retrieve(_ context.Context, ref artifact.Ref) (io.ReadCloser, error) {
	if !ref.IsValid() {
		return nil, artifact.ErrInvalidRef
	}

	file, err := os.Open(filepath.Join(s.dir(ref.ID), contentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, artifact.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return file, nil
}

// Delete removes an artifact.
func (s *ArtifactStore) Delete(_ context.Context, ref artifact.Ref) error {
	if !ref.IsValid() {
		return artifact.ErrInvalidRef
	}

	dir := s.dir(ref.ID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return artifact.ErrArtifactNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Exists checks if an artifact exists.
func (s *ArtifactStore) Exists(_ context.Context, ref artifact.Ref) (bool, error) {
	if !ref.IsValid() {
		return false, artifact.ErrInvalidRef
	}

	_, err := os.Stat(filepath.Join(s.dir(ref.ID), contentFile))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Metadata retrieves the metadata for an artifact without content.
func (s *ArtifactStore) Metadata(_ context.Context, ref artifact.Ref) (artifact.Ref, error) {
	if !ref.IsValid() {
		return artifact.Ref{}, artifact.ErrInvalidRef
	}

	data, err := os.ReadFile(filepath.Join(s.dir(ref.ID), metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return artifact.Ref{}, artifact.ErrArtifactNotFound
		}
		return artifact.Ref{}, fmt.Errorf("read metadata: %w", err)
	}

	var stored artifact.Ref
	if err := json.Unmarshal(data, &stored); err != nil {
		return artifact.Ref{}, fmt.Errorf("decode metadata: %w", err)
	}
	return stored, nil
}

// dir returns the directory for an artifact. The id is reduced to its base
// name so a crafted reference cannot escape basePath.
func (s *ArtifactStore) dir(id string) string {
	return filepath.Join(s.basePath, filepath.Base(id))
}

var _ artifact.Store = (*ArtifactStore)(nil)
