// Package objectstore provides an artifact store over cloud object storage.
// Buckets on S3 and GCS and containers on Azure Blob Storage are all reached
// through the Client interface.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recon-go/domain/artifact"
)

// ErrObjectNotFound is returned by clients when an object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Client is the minimal object storage surface the store needs.
type Client interface {
	// Upload writes an object, replacing any existing one.
	Upload(ctx context.Context, bucket, object string, content io.Reader, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, bucket, object string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, bucket, object string) (bool, error)
}

// Config holds configuration for the artifact store.
type Config struct {
	// Client is the object storage client to use.
	Client Client

	// Bucket is the bucket or container name.
	Bucket string

	// Prefix is an optional prefix for all objects.
	Prefix string
}

// ArtifactStore implements artifact.Store on top of a Client.
type ArtifactStore struct {
	client Client
	bucket string
	prefix string
}

// NewArtifactStore creates a new object storage artifact store.
func NewArtifactStore(cfg Config) (*ArtifactStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("object storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &ArtifactStore{
		client: cfg.Client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Store saves content and returns a stable reference.
func (s *ArtifactStore) Store(ctx context.Context, content io.Reader, opts artifact.StoreOptions) (artifact.Ref, error) {
	id := uuid.NewString()

	var buf bytes.Buffer
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(&buf, hasher), content)
	if err != nil {
		return artifact.Ref{}, fmt.Errorf("read content: %w", err)
	}

	ref := opts.Apply(artifact.NewRef(id))
	ref.Size = size
	ref.Checksum = hex.EncodeToString(hasher.Sum(nil))

	contentPath := s.objectPath(id, "content")
	if err := s.client.Upload(ctx, s.bucket, contentPath, &buf, ref.ContentType); err != nil {
		return artifact.Ref{}, fmt.Errorf("upload content: %w", err)
	}

	meta, err := json.Marshal(ref)
	if err != nil {
		_ = s.client.Delete(ctx, s.bucket, contentPath)
		return artifact.Ref{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := s.client.Upload(ctx, s.bucket, s.objectPath(id, "metadata.json"), bytes.NewReader(meta), "application/json"); err != nil {
		_ = s.client.Delete(ctx, s.bucket, contentPath)
		return artifact.Ref{}, fmt.Errorf("upload metadata: %w", err)
	}
	return ref, nil
}

// Retrieve retrieves the content for an artifact reference.
func (s *ArtifactStore) Retrieve(ctx context.Context, ref artifact.Ref) (io.ReadCloser, error) {
	if !ref.IsValid() {
		return nil, artifact.ErrInvalidRef
	}

	reader, err := s.client.Download(ctx, s.bucket, s.objectPath(ref.ID, "content"))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, artifact.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	return reader, nil
}

// Delete removes an artifact.
func (s *ArtifactStore) Delete(ctx context.Context, ref artifact.Ref) error {
	if !ref.IsValid() {
		return artifact.ErrInvalidRef
	}

	contentPath := s.objectPath(ref.ID, "content")
	exists, err := s.client.Exists(ctx, s.bucket, contentPath)
	if err != nil {
		return fmt.Errorf("check artifact: %w", err)
	}
	if !exists {
		return artifact.ErrArtifactNotFound
	}

	if err := s.client.Delete(ctx, s.bucket, contentPath); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	_ = s.client.Delete(ctx, s.bucket, s.objectPath(ref.ID, "metadata.json"))
	return nil
}

// Exists checks if an artifact exists.
func (s *ArtifactStore) Exists(ctx context.Context, ref artifact.Ref) (bool, error) {
	if !ref.IsValid() {
		return false, artifact.ErrInvalidRef
	}
	return s.client.Exists(ctx, s.bucket, s.objectPath(ref.ID, "content"))
}

// Metadata retrieves the metadata for an artifact without content.
func (s *ArtifactStore) Metadata(ctx context.Context, ref artifact.Ref) (artifact.Ref, error) {
	if !ref.IsValid() {
		return artifact.Ref{}, artifact.ErrInvalidRef
	}

	reader, err := s.client.Download(ctx, s.bucket, s.objectPath(ref.ID, "metadata.json"))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return artifact.Ref{}, artifact.ErrArtifactNotFound
		}
		return artifact.Ref{}, fmt.Errorf("download metadata: %w", err)
	}
	defer func() { _ = reader.Close() }()

	var stored artifact.Ref
	if err := json.NewDecoder(reader).Decode(&stored); err != nil {
		return artifact.Ref{}, fmt.Errorf("decode metadata: %w", err)
	}
	return stored, nil
}

func (s *ArtifactStore) objectPath(id, name string) string {
	return path.Join(s.prefix, id, name)
}

var _ artifact.Store = (*ArtifactStore)(nil)
