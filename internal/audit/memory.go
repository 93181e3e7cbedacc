package audit

import (
	"context"
	"sync"
)

const defaultMemoryCapacity = 4096

// MemoryStore keeps the most recent events in a fixed-capacity ring.
// Old events fall off the end; nothing is ever modified in place.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	start  int
	count  int
}

// NewMemoryStore returns a ring-buffer store holding up to capacity
// events. A non-positive capacity selects the default.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{events: make([]Event, capacity)}
}

func (s *MemoryStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := (s.start + s.count) % len(s.events)
	s.events[idx] = ev
	if s.count < len(s.events) {
		s.count++
	} else {
		s.start = (s.start + 1) % len(s.events)
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.start + s.count - 1 - i) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

// Len reports how many events are currently retained.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *MemoryStore) Close() error { return nil }
