package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rahnavardnetwork/sos/guard/internal/models"
)

var (
	ErrRepNotFound     = errors.New("rep not found")
	ErrRepExists       = errors.New("rep already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// SessionStore persists rep sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	RotateSession(ctx context.Context, id, tokenHash string, rotatedAt time.Time) error
	SetMFAVerified(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// RepStore looks up reps.
type RepStore interface {
	CreateRep(ctx context.Context, rep *models.Rep) error
	GetRepByID(ctx context.Context, id string) (*models.Rep, error)
	GetRepByUsername(ctx context.Context, username string) (*models.Rep, error)
}

// ActivityStore records the rep activity trail.
type ActivityStore interface {
	LogActivity(ctx context.Context, activity *models.Activity) error
	ListActivity(ctx context.Context, repID string, limit int) ([]*models.Activity, error)
}

type Repository interface {
	SessionStore
	RepStore
	ActivityStore
}
