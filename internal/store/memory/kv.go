// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ampscan/ampscan/internal/scan"
)

type kvEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// KV implements scan.KV over a map with TTL bookkeeping.
type KV struct {
	mu      sync.Mutex
	clock   scan.Clock
	entries map[string]kvEntry
}

// NewKV constructs a KV using the given clock for expiry checks.
func NewKV(clock scan.Clock) *KV {
	return &KV{
		clock:   clock,
		entries: make(map[string]kvEntry),
	}
}

// Get returns the live value for key, treating expired entries as absent.
func (s *KV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(s.clock.Now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. A non-positive ttl means no expiry.
func (s *KV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.newEntry(value, ttl)
	return nil
}

// SetNX stores value only when the key is absent or expired.
func (s *KV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && !entry.expired(s.clock.Now()) {
		return false, nil
	}
	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

// Delete removes key.
func (s *KV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *KV) newEntry(value string, ttl time.Duration) kvEntry {
	entry := kvEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	return entry
}
