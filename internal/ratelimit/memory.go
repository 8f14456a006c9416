package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps rate windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

// Admit implements Store.
func (s *MemoryStore) Admit(_ context.Context, key string, rule Rule, now time.Time) (bool, error) {
	cutoff := now.Add(-rule.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.windows[key]
	valid := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rule.MaxRequests {
		return false, nil
	}

	s.windows[key] = append(valid, now)
	return true, nil
}
