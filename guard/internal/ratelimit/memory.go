package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryBuckets bounds the number of tracked (identity, class) pairs.
const DefaultMemoryBuckets = 100000

type bucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// MemoryStore keeps buckets in process memory. Buckets untouched for the
// idle TTL are evicted, and the least recently used bucket is evicted once
// the size bound is reached.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
}

// NewMemoryStore creates a MemoryStore. size <= 0 selects DefaultMemoryBuckets.
func NewMemoryStore(size int, idleTTL time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryBuckets
	}
	return &MemoryStore{
		buckets: expirable.NewLRU[string, *bucket](size, nil, idleTTL),
	}
}

func (s *MemoryStore) Consume(_ context.Context, key string, p Policy, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets.Get(key)
	if !ok {
		b = &bucket{windowStart: now}
	}
	defer s.buckets.Add(key, b)

	if !b.blockedUntil.IsZero() {
		if now.Before(b.blockedUntil) {
			return Decision{RetryAfter: b.blockedUntil.Sub(now)}, nil
		}
		// Block served: the identity starts over with a fresh window.
		*b = bucket{windowStart: now}
	}

	windowEnd := b.windowStart.Add(p.Window)
	if !now.Before(windowEnd) {
		b.count = 0
		b.windowStart = now
		windowEnd = now.Add(p.Window)
	}

	b.count++
	if b.count <= p.Quota {
		return Decision{Allowed: true, Remaining: p.Quota - b.count}, nil
	}

	if p.BlockDuration > 0 {
		b.blockedUntil = now.Add(p.BlockDuration)
		return Decision{RetryAfter: p.BlockDuration, Exhausted: true}, nil
	}
	return Decision{RetryAfter: windowEnd.Sub(now), Exhausted: b.count == p.Quota+1}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets.Remove(key)
	return nil
}

// Len reports the number of live buckets.
func (s *MemoryStore) Len() int {
	return s.buckets.Len()
}
