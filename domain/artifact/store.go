package artifact

import (
	"context"
	"errors"
	"io"
)

// Store defines the interface for artifact storage.
// Implementations are in infrastructure.
type Store interface {
	// Store saves content and returns a stable reference.
	Store(ctx context.Context, content io.Reader, opts StoreOptions) (Ref, error)

	// Retrieve retrieves the content for an artifact reference.
	Retrieve(ctx context.Context, ref Ref) (io.ReadCloser, error)

	// Delete removes an artifact.
	Delete(ctx context.Context, ref Ref) error

	// Exists checks if an artifact exists.
	Exists(ctx context.Context, ref Ref) (bool, error)

	// Metadata retrieves the metadata for an artifact without content.
	Metadata(ctx context.Context, ref Ref) (Ref, error)
}

// StoreOptions configures artifact storage.
type StoreOptions struct {
	// Name is an optional human-readable name.
	Name string

	// ContentType is the MIME type of the content.
	ContentType string

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]string
}

// ScanOptions returns options for one invocation's XML output.
func ScanOptions(runID, target, actionID, name string) StoreOptions {
	return StoreOptions{
		Name:        name,
		ContentType: ContentTypeXML,
		Metadata: map[string]string{
			MetaRunID:    runID,
			MetaTarget:   target,
			MetaActionID: actionID,
		},
	}
}

// Apply copies the options onto a fresh reference.
func (o StoreOptions) Apply(ref Ref) Ref {
	ref.Name = o.Name
	ref.ContentType = o.ContentType
	if ref.ContentType == "" {
		ref.ContentType = "application/octet-stream"
	}
	for k, v := range o.Metadata {
		ref = ref.WithMetadata(k, v)
	}
	return ref
}

// Domain errors for artifact storage.
var (
	// ErrArtifactNotFound indicates the artifact was not found.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidRef indicates the artifact reference is invalid.
	ErrInvalidRef = errors.New("invalid artifact reference")
)
