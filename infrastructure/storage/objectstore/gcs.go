package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSClient implements Client for Google Cloud Storage.
type GCSClient struct {
	client *storage.Client
}

// NewGCSClient creates a client. An empty credentials file falls back to
// Application Default Credentials.
func NewGCSClient(ctx context.Context, credentialsFile string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Upload implements Client.
func (c *GCSClient) Upload(ctx context.Context, bucket, object string, content io.Reader, contentType string) error {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Download implements Client.
func (c *GCSClient) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return r, nil
}

// Delete implements Client.
func (c *GCSClient) Delete(ctx context.Context, bucket, object string) error {
	err := c.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// Exists implements Client.
func (c *GCSClient) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close releases the underlying client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

var _ Client = (*GCSClient)(nil)
