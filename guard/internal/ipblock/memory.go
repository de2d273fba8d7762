package ipblock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	blocks      map[string]Record
	failed      map[string]int
	escalations map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:      make(map[string]Record),
		failed:      make(map[string]int),
		escalations: make(map[string]int),
	}
}

func (s *MemoryStore) GetBlock(_ context.Context, identity string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blocks[identity]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) PutBlock(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[rec.Identity] = rec
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, identity)
	return nil
}

func (s *MemoryStore) ListBlocks(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.blocks))
	for _, rec := range s.blocks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })
	return out, nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.blocks {
		if rec.Expired(now) {
			delete(s.blocks, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) IncrFailed(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[identity]++
	return s.failed[identity], nil
}

func (s *MemoryStore) ResetFailed(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, identity)
	return nil
}

func (s *MemoryStore) IncrEscalation(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations[identity]++
	return s.escalations[identity], nil
}

func (s *MemoryStore) ResetEscalation(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.escalations, identity)
	return nil
}
