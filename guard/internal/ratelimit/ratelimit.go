// Package ratelimit implements fixed-window request quotas per client
// identity, with a separate block period once a quota is exhausted.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Class selects an independent rate-limit policy.
type Class string

const (
	ClassGeneral   Class = "general"
	ClassAuth      Class = "auth"
	ClassSensitive Class = "sensitive"
)

// Classes lists every limiter class.
var Classes = []Class{ClassGeneral, ClassAuth, ClassSensitive}

// Policy configures one limiter class.
type Policy struct {
	// Quota is the number of requests allowed per window.
	Quota int `mapstructure:"quota"`
	// Window is the fixed window length.
	Window time.Duration `mapstructure:"window"`
	// BlockDuration is how long the class rejects the identity after the
	// quota is exhausted. Zero falls back to the end of the current window.
	BlockDuration time.Duration `mapstructure:"block_duration"`
	// PromoteToBlock asks the caller to place the identity in the IP block
	// registry for BlockDuration when the quota is exhausted.
	PromoteToBlock bool `mapstructure:"promote_to_block"`
}

// DefaultPolicies returns the production quotas.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassGeneral:   {Quota: 100, Window: 15 * time.Minute, BlockDuration: time.Minute},
		ClassAuth:      {Quota: 5, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute, PromoteToBlock: true},
		ClassSensitive: {Quota: 20, Window: time.Hour, BlockDuration: 30 * time.Minute, PromoteToBlock: true},
	}
}

// Decision is the result of consuming one point.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration
	// Exhausted is true only for the request that crossed the quota.
	Exhausted bool
}

// Store keeps bucket state. Implementations must make Consume atomic per key.
type Store interface {
	Consume(ctx context.Context, key string, p Policy, now time.Time) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// Limiter applies per-class policies to client identities.
type Limiter struct {
	store    Store
	policies map[Class]Policy
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter. Classes missing from policies use the defaults.
func NewLimiter(store Store, policies map[Class]Policy, opts ...Option) *Limiter {
	merged := DefaultPolicies()
	for c, p := range policies {
		merged[c] = p
	}
	l := &Limiter{store: store, policies: merged, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the policy for class, falling back to general.
func (l *Limiter) Policy(class Class) Policy {
	if p, ok := l.policies[class]; ok {
		return p
	}
	return l.policies[ClassGeneral]
}

// Consume takes one point from identity's bucket for class.
func (l *Limiter) Consume(ctx context.Context, identity string, class Class) (Decision, error) {
	if _, ok := l.policies[class]; !ok {
		class = ClassGeneral
	}
	d, err := l.store.Consume(ctx, bucketKey(class, identity), l.policies[class], l.now())
	if err != nil {
		return Decision{}, fmt.Errorf("consume %s bucket: %w", class, err)
	}
	return d, nil
}

// Reset discards identity's bucket for class.
func (l *Limiter) Reset(ctx context.Context, identity string, class Class) error {
	return l.store.Reset(ctx, bucketKey(class, identity))
}

// IdleTTL is the inactivity period after which no bucket governed by
// policies can still affect a decision.
func IdleTTL(policies map[Class]Policy) time.Duration {
	var ttl time.Duration
	for _, p := range policies {
		ttl = max(ttl, p.Window, p.BlockDuration)
	}
	return ttl
}

func bucketKey(class Class, identity string) string {
	return string(class) + ":" + identity
}

// ClassForPath infers a limiter class from a request path: login and
// registration get auth, rep, submission and dashboard paths get sensitive.
func ClassForPath(path string) Class {
	switch {
	case strings.Contains(path, "/login"), strings.Contains(path, "/register"):
		return ClassAuth
	case strings.HasPrefix(path, "/api/rep"),
		strings.HasPrefix(path, "/api/submit"),
		strings.HasPrefix(path, "/dashboard"):
		return ClassSensitive
	default:
		return ClassGeneral
	}
}
