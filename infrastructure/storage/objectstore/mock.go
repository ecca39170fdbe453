package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MockClient is an in-memory Client for tests and dry runs.
type MockClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMockClient creates an empty in-memory client.
func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string][]byte)}
}

// Upload implements Client.
func (c *MockClient) Upload(_ context.Context, bucket, object string, content io.Reader, _ string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+object] = data
	return nil
}

// Download implements Client.
func (c *MockClient) Download(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.objects[bucket+"/"+object]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete implements Client.
func (c *MockClient) Delete(_ context.Context, bucket, object string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, bucket+"/"+object)
	return nil
}

// Exists implements Client.
func (c *MockClient) Exists(_ context.Context, bucket, object string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[bucket+"/"+object]
	return ok, nil
}

// ObjectCount returns the number of stored objects.
func (c *MockClient) ObjectCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

var _ Client = (*MockClient)(nil)
