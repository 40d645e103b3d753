// Package memory implements an in-memory blob store for tests and
// single-process runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Object is a stored blob with its content type.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps page snapshots in a process-local map.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New creates an empty in-memory blob store.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores the blob and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{ContentType: contentType, Data: data}
	return fmt.Sprintf("mem://%s", path), nil
}

// GetObject returns a stored blob.
func (s *BlobStore) GetObject(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
