package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MFA verification failures.
var (
	ErrCodeNotFound     = errors.New("mfa code not found")
	ErrCodeExpired      = errors.New("mfa code expired")
	ErrTooManyAttempts  = errors.New("mfa attempts exhausted")
	ErrCodeMismatch     = errors.New("mfa code incorrect")
	errUnexpectedResult = errors.New("unexpected mfa store reply")
)

// MFAConfig holds the challenge policy.
type MFAConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Required    bool          `mapstructure:"required"`
	CodeLength  int           `mapstructure:"code_length"`
	Expiry      time.Duration `mapstructure:"expiry"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

func DefaultMFAConfig() MFAConfig {
	return MFAConfig{
		Enabled:     true,
		Required:    false,
		CodeLength:  6,
		Expiry:      5 * time.Minute,
		MaxAttempts: 3,
	}
}

// Challenge is a pending code for one subject.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// ChallengeStore keeps one challenge per subject. Verify applies the whole
// check sequence atomically: missing, expired, exhausted, then match.
type ChallengeStore interface {
	Put(ctx context.Context, subjectID string, c Challenge) error
	Verify(ctx context.Context, subjectID, code string, now time.Time, maxAttempts int) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// MFA issues and checks one-time codes.
type MFA struct {
	store ChallengeStore
	cfg   MFAConfig
	now   func() time.Time
}

func NewMFA(store ChallengeStore, cfg MFAConfig, now func() time.Time) *MFA {
	if now == nil {
		now = time.Now
	}
	return &MFA{store: store, cfg: cfg, now: now}
}

// Enabled reports whether MFA challenges are issued at all.
func (m *MFA) Enabled() bool { return m.cfg.Enabled }

// Required reports whether every authenticated route demands MFA.
func (m *MFA) Required() bool { return m.cfg.Required }

// GenerateCode returns an uppercase hex code of the configured length.
func (m *MFA) GenerateCode() (string, error) {
	n := m.cfg.CodeLength
	if n <= 0 {
		n = 6
	}
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate mfa code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b))[:n], nil
}

// StoreCode replaces any pending challenge for subjectID.
func (m *MFA) StoreCode(ctx context.Context, subjectID, code string) error {
	return m.store.Put(ctx, subjectID, Challenge{
		Code:      code,
		ExpiresAt: m.now().Add(m.cfg.Expiry),
	})
}

// VerifyCode consumes the challenge on success or once it is exhausted.
func (m *MFA) VerifyCode(ctx context.Context, subjectID, code string) error {
	return m.store.Verify(ctx, subjectID, code, m.now(), m.cfg.MaxAttempts)
}

// Sweep removes expired challenges.
func (m *MFA) Sweep(ctx context.Context) (int, error) {
	return m.store.SweepExpired(ctx, m.now())
}

// MemoryChallengeStore is a process-local ChallengeStore.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]*Challenge)}
}

func (s *MemoryChallengeStore) Put(_ context.Context, subjectID string, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[subjectID] = &c
	return nil
}

func (s *MemoryChallengeStore) Verify(_ context.Context, subjectID, code string, now time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[subjectID]
	if !ok {
		return ErrCodeNotFound
	}
	if now.After(c.ExpiresAt) {
		delete(s.challenges, subjectID)
		return ErrCodeExpired
	}
	if c.Attempts >= maxAttempts {
		delete(s.challenges, subjectID)
		return ErrTooManyAttempts
	}
	c.Attempts++
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		return ErrCodeMismatch
	}
	delete(s.challenges, subjectID)
	return nil
}

func (s *MemoryChallengeStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.challenges {
		if now.After(c.ExpiresAt) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}

var verifyScript = redis.NewScript(`
local c = redis.call('HMGET', KEYS[1], 'code', 'expires', 'attempts')
if not c[1] then
	return 'not_found'
end
if tonumber(ARGV[2]) > tonumber(c[2]) then
	redis.call('DEL', KEYS[1])
	return 'expired'
end
if tonumber(c[3]) >= tonumber(ARGV[3]) then
	redis.call('DEL', KEYS[1])
	return 'exhausted'
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if c[1] ~= ARGV[1] then
	return 'mismatch'
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// RedisChallengeStore shares challenges between guard instances so a code
// issued by one instance verifies on another.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, prefix: "mfa:"}
}

func (s *RedisChallengeStore) Put(ctx context.Context, subjectID string, c Challenge) error {
	key := s.prefix + subjectID
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code", c.Code,
		"expires", strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10),
		"attempts", c.Attempts,
	)
	ttl := time.Until(c.ExpiresAt) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store mfa code: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Verify(ctx context.Context, subjectID, code string, now time.Time, maxAttempts int) error {
	res, err := verifyScript.Run(ctx, s.client, []string{s.prefix + subjectID},
		code, now.UnixMilli(), maxAttempts).Text()
	if err != nil {
		return fmt.Errorf("verify mfa code: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "not_found":
		return ErrCodeNotFound
	case "expired":
		return ErrCodeExpired
	case "exhausted":
		return ErrTooManyAttempts
	case "mismatch":
		return ErrCodeMismatch
	}
	return fmt.Errorf("%w: %q", errUnexpectedResult, res)
}

func (s *RedisChallengeStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
