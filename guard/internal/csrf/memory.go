package csrf

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = tok
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[key]
	switch {
	case !ok:
		return ErrNotFound
	case tok.Used:
		return ErrUsed
	case now.After(tok.ExpiresAt):
		delete(s.tokens, key)
		return ErrExpired
	case subtle.ConstantTimeCompare([]byte(tok.Value), []byte(value)) != 1:
		return ErrMismatch
	}
	tok.Used = true
	s.tokens[key] = tok
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, tok := range s.tokens {
		if now.After(tok.ExpiresAt) {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}
