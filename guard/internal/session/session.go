// Package session authenticates rep requests: bearer tokens bound to a
// browser fingerprint, rotation, absolute timeout and MFA challenges.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/repository"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
)

// Verification failures. Callers must not tell the client which one
// occurred.
var (
	ErrMissingToken        = errors.New("missing bearer token")
	ErrInvalidToken        = errors.New("invalid token")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSubjectInactive     = errors.New("subject inactive")
	ErrSessionExpired      = errors.New("session expired")
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
	ErrAbsoluteTimeout     = errors.New("session exceeded absolute timeout")
)

// HeaderSessionToken carries the replacement token after rotation.
const HeaderSessionToken = "X-Session-Token"

// Config holds the session lifecycle policy.
type Config struct {
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
	AbsoluteTimeout  time.Duration `mapstructure:"absolute_timeout"`
}

func DefaultConfig() Config {
	return Config{
		RotationInterval: time.Hour,
		AbsoluteTimeout:  7 * 24 * time.Hour,
	}
}

// EventRecorder is the subset of the security event log used here.
type EventRecorder interface {
	Record(ctx context.Context, e secevent.Entry) secevent.Event
}

// Identity is the outcome of a successful verification.
type Identity struct {
	Rep     *models.Rep
	Session *models.Session
	// RotatedToken is set when verification rotated the session token.
	RotatedToken string
}

// Manager creates and verifies sessions.
type Manager struct {
	sessions repository.SessionStore
	reps     repository.RepStore
	tokens   *TokenIssuer
	events   EventRecorder
	logger   *logging.Logger
	cfg      Config
	now      func() time.Time
}

func NewManager(
	sessions repository.SessionStore,
	reps repository.RepStore,
	tokens *TokenIssuer,
	events EventRecorder,
	logger *logging.Logger,
	cfg Config,
	now func() time.Time,
) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: sessions,
		reps:     reps,
		tokens:   tokens,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      now,
	}
}

// ShouldRotate reports whether the token is due for rotation.
func (m *Manager) ShouldRotate(s *models.Session) bool {
	return m.now().Sub(s.LastRotationAt) > m.cfg.RotationInterval
}

// IsExpired reports whether s has outlived the absolute timeout,
// independent of rotation.
func (m *Manager) IsExpired(s *models.Session) bool {
	return m.now().Sub(s.CreatedAt) > m.cfg.AbsoluteTimeout
}

// Create opens a session for rep bound to the fingerprint of r and returns
// its bearer token.
func (m *Manager) Create(ctx context.Context, rep *models.Rep, r *http.Request) (string, *models.Session, error) {
	sessionID := uuid.NewString()
	token, expiresAt, err := m.tokens.Issue(rep.ID, sessionID)
	if err != nil {
		return "", nil, err
	}

	now := m.now()
	s := &models.Session{
		ID:             sessionID,
		RepID:          rep.ID,
		TokenHash:      HashToken(token),
		Fingerprint:    RequestFingerprint(r),
		CreatedAt:      now,
		LastRotationAt: now,
		ExpiresAt:      expiresAt,
	}
	if err := m.sessions.CreateSession(ctx, s); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return token, s, nil
}

// Verify authenticates r. Any failure returns a nil Identity and one of the
// package errors; the caller treats them all as unauthenticated.
func (m *Manager) Verify(ctx context.Context, r *http.Request) (*Identity, error) {
	token := httputil.BearerToken(r)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	s, err := m.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if s.ID != claims.SessionID {
		return nil, ErrInvalidToken
	}

	rep, err := m.reps.GetRepByID(ctx, s.RepID)
	if err != nil || !rep.IsActive() {
		return nil, ErrSubjectInactive
	}

	if s.ExpiresAt.Before(m.now()) {
		return nil, ErrSessionExpired
	}

	current := RequestFingerprint(r)
	if s.Fingerprint != "" && !ValidateFingerprint(s.Fingerprint, current) {
		m.invalidate(ctx, s)
		m.events.Record(ctx, secevent.Entry{
			Type:      secevent.TypeSessionHijackAttempt,
			Severity:  secevent.SeverityCritical,
			Identity:  httputil.ClientIdentity(r),
			SubjectID: rep.ID,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details:   map[string]any{"session_id": s.ID},
		})
		return nil, ErrFingerprintMismatch
	}

	if m.IsExpired(s) {
		m.invalidate(ctx, s)
		return nil, ErrAbsoluteTimeout
	}

	id := &Identity{Rep: rep, Session: s}
	if m.ShouldRotate(s) {
		rotated, err := m.rotate(ctx, s)
		if err != nil {
			return nil, err
		}
		id.RotatedToken = rotated
	}
	return id, nil
}

func (m *Manager) rotate(ctx context.Context, s *models.Session) (string, error) {
	token, _, err := m.tokens.Issue(s.RepID, s.ID)
	if err != nil {
		return "", err
	}
	now := m.now()
	hash := HashToken(token)
	if err := m.sessions.RotateSession(ctx, s.ID, hash, now); err != nil {
		return "", fmt.Errorf("%w: rotate: %v", ErrSessionNotFound, err)
	}
	s.TokenHash = hash
	s.LastRotationAt = now
	metrics.SessionRotations.Inc()
	m.logger.InfoContext(ctx, "session rotated",
		logging.SessionID(s.ID), logging.SubjectID(s.RepID))
	return token, nil
}

func (m *Manager) invalidate(ctx context.Context, s *models.Session) {
	if err := m.sessions.DeleteSession(ctx, s.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		m.logger.WarnContext(ctx, "failed to delete session",
			logging.SessionID(s.ID), logging.Error(err))
	}
}

// MarkMFAVerified records a passed MFA challenge on the session.
func (m *Manager) MarkMFAVerified(ctx context.Context, sessionID string) error {
	return m.sessions.SetMFAVerified(ctx, sessionID)
}

// Revoke ends a session.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.sessions.DeleteSession(ctx, sessionID)
}

// SweepExpired removes sessions past their expiry.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	return m.sessions.DeleteExpiredSessions(ctx, m.now())
}
