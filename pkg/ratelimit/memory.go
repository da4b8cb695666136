package ratelimit

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*Window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*Window)}
}

func (s *MemoryStore) Increment(_ context.Context, key string, policy Policy, now time.Time) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.ResetAt) {
		w = &Window{
			Key:         key,
			Limit:       policy.MaxRequests,
			WindowStart: now,
			ResetAt:     now.Add(policy.Window),
		}
		s.windows[key] = w
	}

	if w.Count < w.Limit {
		w.Count++
		return *w, true, nil
	}
	return *w, false, nil
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.ResetAt) {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Sweep drops every window that expired at or before now and reports how many
// were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.ResetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
