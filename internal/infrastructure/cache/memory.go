package cache

import (
	"context"
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/values"
)

// memoryStore is an in-process Store used by tests and single-node setups
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory cache store
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]*Entry)}
}

func (s *memoryStore) Get(_ context.Context, fp values.Fingerprint) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fp.String()]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (s *memoryStore) Put(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entry.Fingerprint.String()] = &copied
	return nil
}

func (s *memoryStore) Delete(_ context.Context, fp values.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fp.String())
	return nil
}

// MemoryWindowCounter is the in-process rolling-window counter counterpart
// of RedisWindowCounter.
type MemoryWindowCounter struct {
	mu         sync.Mutex
	admissions map[string][]time.Time
}

// NewMemoryWindowCounter creates an empty counter
func NewMemoryWindowCounter() *MemoryWindowCounter {
	return &MemoryWindowCounter{admissions: make(map[string][]time.Time)}
}

// Increment records one admission and returns the in-window count
func (c *MemoryWindowCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	kept := c.trim(key, now.Add(-window))
	kept = append(kept, now)
	c.admissions[key] = kept
	return int64(len(kept)), nil
}

// Count returns the in-window admissions without recording one
func (c *MemoryWindowCounter) Count(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.trim(key, time.Now().Add(-window))
	c.admissions[key] = kept
	return int64(len(kept)), nil
}

func (c *MemoryWindowCounter) trim(key string, cutoff time.Time) []time.Time {
	var kept []time.Time
	for _, t := range c.admissions[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
