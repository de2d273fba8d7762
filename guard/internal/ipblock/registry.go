// Package ipblock keeps the ledger of blocked client identities and the
// failed-attempt counters that feed it.
package ipblock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
)

// Record describes an active block.
type Record struct {
	Identity    string    `json:"identity"`
	Reason      string    `json:"reason"`
	BlockedAt   time.Time `json:"blocked_at"`
	Until       time.Time `json:"until"`
	Escalations int       `json:"escalations"`
	Permanent   bool      `json:"permanent"`
}

// Expired reports whether the block no longer applies at now.
func (r Record) Expired(now time.Time) bool {
	return !r.Permanent && now.After(r.Until)
}

// Status is the answer to IsBlocked.
type Status struct {
	Blocked   bool
	Reason    string
	Until     time.Time
	Permanent bool
}

// Store persists blocks and counters. Failed-attempt and escalation
// counters outlive the blocks they cause.
type Store interface {
	GetBlock(ctx context.Context, identity string) (*Record, error)
	PutBlock(ctx context.Context, rec Record) error
	DeleteBlock(ctx context.Context, identity string) error
	ListBlocks(ctx context.Context) ([]Record, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	IncrFailed(ctx context.Context, identity string) (int, error)
	ResetFailed(ctx context.Context, identity string) error
	IncrEscalation(ctx context.Context, identity string) (int, error)
	ResetEscalation(ctx context.Context, identity string) error
}

// Listener is told about every block placed. Calls run on their own
// goroutine and must not assume the request is still alive.
type Listener interface {
	BlockPlaced(ctx context.Context, rec Record) error
}

// Config holds the escalation policy.
type Config struct {
	// MaxFailedAttempts is the failed-attempt count that triggers a block.
	MaxFailedAttempts int `mapstructure:"max_failed_attempts"`
	// BlockDuration is the length of an automatic block.
	BlockDuration time.Duration `mapstructure:"block_duration"`
	// PermanentBlockAfter makes the Nth block of an identity permanent.
	// Zero disables permanent blocks.
	PermanentBlockAfter int `mapstructure:"permanent_block_after"`
}

// DefaultConfig blocks for 24h after 10 failures and never blocks permanently.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts:   10,
		BlockDuration:       24 * time.Hour,
		PermanentBlockAfter: 0,
	}
}

// ReasonTooManyFailures is recorded for automatic blocks.
const ReasonTooManyFailures = "too many failed attempts"

const listenerTimeout = 5 * time.Second

// Registry is the block ledger consulted before rate limiting.
type Registry struct {
	store     Store
	cfg       Config
	logger    *logging.Logger
	listeners []Listener
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithListener registers a Listener for placed blocks.
func WithListener(l Listener) Option {
	return func(r *Registry) { r.listeners = append(r.listeners, l) }
}

// NewRegistry creates a Registry.
func NewRegistry(store Store, cfg Config, logger *logging.Logger, opts ...Option) *Registry {
	r := &Registry{store: store, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsBlocked reports whether identity is blocked. Expired records are
// removed as a side effect.
func (r *Registry) IsBlocked(ctx context.Context, identity string) (Status, error) {
	rec, err := r.store.GetBlock(ctx, identity)
	if err != nil {
		return Status{}, fmt.Errorf("lookup block: %w", err)
	}
	if rec == nil {
		return Status{}, nil
	}
	if rec.Expired(r.now()) {
		if err := r.store.DeleteBlock(ctx, identity); err != nil {
			return Status{}, fmt.Errorf("delete expired block: %w", err)
		}
		return Status{}, nil
	}
	return Status{Blocked: true, Reason: rec.Reason, Until: rec.Until, Permanent: rec.Permanent}, nil
}

// Block places or replaces a block on identity for d. Every block counts
// as one escalation; reaching PermanentBlockAfter makes it permanent.
func (r *Registry) Block(ctx context.Context, identity, reason string, d time.Duration) (Record, error) {
	escalations, err := r.store.IncrEscalation(ctx, identity)
	if err != nil {
		return Record{}, fmt.Errorf("count escalation: %w", err)
	}

	now := r.now()
	rec := Record{
		Identity:    identity,
		Reason:      reason,
		BlockedAt:   now,
		Until:       now.Add(d),
		Escalations: escalations,
		Permanent:   r.cfg.PermanentBlockAfter > 0 && escalations >= r.cfg.PermanentBlockAfter,
	}

	if err := r.store.PutBlock(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("store block: %w", err)
	}

	r.logger.Warn("identity blocked",
		slog.String("reason", reason),
		slog.Time("until", rec.Until),
		slog.Int("escalations", escalations),
		slog.Bool("permanent", rec.Permanent),
	)
	metrics.BlocksPlaced.WithLabelValues(strconv.FormatBool(rec.Permanent)).Inc()

	r.notify(rec)
	return rec, nil
}

// BlockDefault blocks identity for the configured BlockDuration.
func (r *Registry) BlockDefault(ctx context.Context, identity, reason string) (Record, error) {
	return r.Block(ctx, identity, reason, r.cfg.BlockDuration)
}

// RecordFailedAttempt increments identity's failure counter and blocks it
// once the counter reaches MaxFailedAttempts. It returns the new count.
func (r *Registry) RecordFailedAttempt(ctx context.Context, identity string) (int, error) {
	n, err := r.store.IncrFailed(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("count failed attempt: %w", err)
	}
	if r.cfg.MaxFailedAttempts > 0 && n >= r.cfg.MaxFailedAttempts {
		if _, err := r.Block(ctx, identity, ReasonTooManyFailures, r.cfg.BlockDuration); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Clear forgets identity's failed attempts. Called after a successful
// authentication; existing blocks are untouched.
func (r *Registry) Clear(ctx context.Context, identity string) error {
	return r.store.ResetFailed(ctx, identity)
}

// Unblock lifts a block and resets both counters for identity.
func (r *Registry) Unblock(ctx context.Context, identity string) error {
	if err := r.store.DeleteBlock(ctx, identity); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if err := r.store.ResetFailed(ctx, identity); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return r.store.ResetEscalation(ctx, identity)
}

// List returns the blocks still in effect.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	all, err := r.store.ListBlocks(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	active := all[:0]
	for _, rec := range all {
		if !rec.Expired(now) {
			active = append(active, rec)
		}
	}
	return active, nil
}

// Sweep removes expired blocks and returns how many were removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	return r.store.SweepExpired(ctx, r.now())
}

func (r *Registry) notify(rec Record) {
	for _, l := range r.listeners {
		go func(l Listener) {
			ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
			defer cancel()
			if err := l.BlockPlaced(ctx, rec); err != nil {
				r.logger.Warn("failed to broadcast block", logging.Error(err))
			}
		}(l)
	}
}
