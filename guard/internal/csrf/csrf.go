// Package csrf issues single-use anti-forgery tokens bound to a session key.
package csrf

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Rejection reasons. They are logged, never shown to the client.
var (
	ErrMissingToken = errors.New("csrf token missing")
	ErrNotFound     = errors.New("csrf token not found")
	ErrUsed         = errors.New("csrf token already used")
	ErrExpired      = errors.New("csrf token expired")
	ErrMismatch     = errors.New("invalid csrf token")
)

const tokenBytes = 32

// Token is the stored state for one session key.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Used      bool
}

// Usable reports whether t can still be handed out at now.
func (t Token) Usable(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}

// Store keeps one token per key. Consume must check and mark the token used
// in a single atomic step and return one of the rejection errors on failure.
type Store interface {
	Get(ctx context.Context, key string) (*Token, error)
	Put(ctx context.Context, key string, tok Token) error
	Consume(ctx context.Context, key, value string, now time.Time) error
	Delete(ctx context.Context, key string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

func DefaultConfig() Config {
	return Config{TokenTTL: time.Hour}
}

// Guard issues and validates tokens.
type Guard struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func NewGuard(store Store, cfg Config, opts ...Option) *Guard {
	g := &Guard{store: store, ttl: cfg.TokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue returns the pending token for key, creating one only when there is
// no unexpired unused token.
func (g *Guard) Issue(ctx context.Context, key string) (string, error) {
	tok, err := g.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load csrf token: %w", err)
	}
	if tok != nil && tok.Usable(g.now()) {
		return tok.Value, nil
	}
	return g.Generate(ctx, key)
}

// Generate always creates a fresh token for key, replacing any other.
func (g *Guard) Generate(ctx context.Context, key string) (string, error) {
	value, err := newTokenValue()
	if err != nil {
		return "", err
	}
	tok := Token{Value: value, ExpiresAt: g.now().Add(g.ttl)}
	if err := g.store.Put(ctx, key, tok); err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	return value, nil
}

// Validate accepts value once. The returned error says why it was rejected.
func (g *Guard) Validate(ctx context.Context, key, value string) error {
	if value == "" {
		return ErrMissingToken
	}
	return g.store.Consume(ctx, key, value, g.now())
}

// Revoke drops the token for key.
func (g *Guard) Revoke(ctx context.Context, key string) error {
	return g.store.Delete(ctx, key)
}

// Sweep removes expired tokens.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	return g.store.SweepExpired(ctx, g.now())
}

// AnonymousKey is the token key for requests without a session.
func AnonymousKey(hashedIdentity string) string {
	return "anon:" + hashedIdentity
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
