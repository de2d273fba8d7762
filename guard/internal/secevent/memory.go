package secevent

import (
	"context"
	"sync"
	"time"

	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
)

// MemoryStore is a capped in-process Store. When an append takes it past
// capacity the oldest batch is dropped in one step.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	batch    int
}

func NewMemoryStore(capacity, batch int) *MemoryStore {
	if batch <= 0 || batch > capacity {
		batch = capacity
	}
	return &MemoryStore{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		batch:    batch,
	}
}

func (s *MemoryStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	if s.capacity > 0 && len(s.events) > s.capacity {
		kept := make([]Event, len(s.events)-s.batch, s.capacity)
		copy(kept, s.events[s.batch:])
		s.events = kept
	}
	metrics.SecurityEventsStored.Set(float64(len(s.events)))
	return nil
}

func (s *MemoryStore) Events(_ context.Context, since time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if since.IsZero() || !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	metrics.SecurityEventsStored.Set(float64(len(s.events)))
	return removed, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
