package memory

import (
	"context"
	"sync"

	"github.com/ampscan/ampscan/internal/scan"
)

// ClassificationStore keeps moderation records in a map.
type ClassificationStore struct {
	mu      sync.RWMutex
	records map[string]scan.Classification
}

// NewClassificationStore constructs an empty store.
func NewClassificationStore() *ClassificationStore {
	return &ClassificationStore{records: make(map[string]scan.Classification)}
}

// Get fetches the classification for a slug.
func (s *ClassificationStore) Get(_ context.Context, slug string) (scan.Classification, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[slug]
	return c, ok, nil
}

// Put stores the classification for a slug.
func (s *ClassificationStore) Put(_ context.Context, slug string, c scan.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[slug] = c
	return nil
}

// Reset deletes all records and returns how many were removed.
func (s *ClassificationStore) Reset(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[string]scan.Classification)
	return n, nil
}
