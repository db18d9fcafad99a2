package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is one fixed-window counter.
type Entry struct {
	Count   int
	ResetAt time.Time
}

func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ResetAt)
}

// Store holds counters for the limiter. The in-memory store is the default; a shared
// store lets several instances enforce one budget.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	SweepExpired(ctx context.Context, now time.Time) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	return nil
}

// Len counts stored windows, expired ones included until the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
