package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rahnavardnetwork/sos/guard/internal/models"
)

type InMemoryRepository struct {
	reps          map[string]*models.Rep
	repsByName    map[string]string
	sessions      map[string]*models.Session
	sessionsByTok map[string]string
	activity      []*models.Activity
	mu            sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		reps:          make(map[string]*models.Rep),
		repsByName:    make(map[string]string),
		sessions:      make(map[string]*models.Session),
		sessionsByTok: make(map[string]string),
	}
}

func (r *InMemoryRepository) CreateRep(ctx context.Context, rep *models.Rep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repsByName[rep.Username]; exists {
		return ErrRepExists
	}
	cp := *rep
	r.reps[rep.ID] = &cp
	r.repsByName[rep.Username] = rep.ID
	return nil
}

func (r *InMemoryRepository) GetRepByID(ctx context.Context, id string) (*models.Rep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, exists := r.reps[id]
	if !exists {
		return nil, ErrRepNotFound
	}
	cp := *rep
	return &cp, nil
}

func (r *InMemoryRepository) GetRepByUsername(ctx context.Context, username string) (*models.Rep, error) {
	r.mu.RLock()
	id, exists := r.repsByName[username]
	r.mu.RUnlock()
	if !exists {
		return nil, ErrRepNotFound
	}
	return r.GetRepByID(ctx, id)
}

func (r *InMemoryRepository) CreateSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *session
	r.sessions[session.ID] = &cp
	r.sessionsByTok[session.TokenHash] = session.ID
	return nil
}

func (r *InMemoryRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.sessionsByTok[tokenHash]
	if !exists {
		return nil, ErrSessionNotFound
	}
	session, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *InMemoryRepository) RotateSession(ctx context.Context, id, tokenHash string, rotatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	delete(r.sessionsByTok, session.TokenHash)
	session.TokenHash = tokenHash
	session.LastRotationAt = rotatedAt
	r.sessionsByTok[tokenHash] = id
	return nil
}

func (r *InMemoryRepository) SetMFAVerified(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	session.MFAVerified = true
	return nil
}

func (r *InMemoryRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	delete(r.sessionsByTok, session.TokenHash)
	delete(r.sessions, id)
	return nil
}

func (r *InMemoryRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.sessionsByTok, session.TokenHash)
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) LogActivity(ctx context.Context, activity *models.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *activity
	r.activity = append(r.activity, &cp)
	return nil
}

// ListActivity returns the newest entries first.
func (r *InMemoryRepository) ListActivity(ctx context.Context, repID string, limit int) ([]*models.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Activity
	for _, a := range r.activity {
		if repID == "" || a.RepID == repID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
