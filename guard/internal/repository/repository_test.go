package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahnavardnetwork/sos/guard/internal/models"
)

// exerciseRepository runs the shared contract against any Repository.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rep := &models.Rep{
		ID:           uuid.NewString(),
		Username:     "mina",
		Email:        "mina@example.org",
		FullName:     "Mina K",
		Role:         models.RoleAdmin,
		PasswordHash: "$2a$10$hash",
		Active:       true,
		MFAEnabled:   true,
	}

	t.Run("reps", func(t *testing.T) {
		require.NoError(t, repo.CreateRep(ctx, rep))
		assert.ErrorIs(t, repo.CreateRep(ctx, &models.Rep{ID: uuid.NewString(), Username: "mina", PasswordHash: "x"}), ErrRepExists)

		got, err := repo.GetRepByUsername(ctx, "mina")
		require.NoError(t, err)
		assert.Equal(t, rep.ID, got.ID)
		assert.Equal(t, models.RoleAdmin, got.Role)
		assert.True(t, got.IsActive())
		assert.True(t, got.MFAEnabled)

		got, err = repo.GetRepByID(ctx, rep.ID)
		require.NoError(t, err)
		assert.Equal(t, "mina", got.Username)

		_, err = repo.GetRepByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrRepNotFound)
		_, err = repo.GetRepByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrRepNotFound)
	})

	t.Run("sessions", func(t *testing.T) {
		s := &models.Session{
			ID:             uuid.NewString(),
			RepID:          rep.ID,
			TokenHash:      "hash-1",
			Fingerprint:    "fp",
			CreatedAt:      now,
			LastRotationAt: now,
			ExpiresAt:      now.Add(7 * 24 * time.Hour),
		}
		require.NoError(t, repo.CreateSession(ctx, s))

		got, err := repo.GetSessionByTokenHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, "fp", got.Fingerprint)
		assert.False(t, got.MFAVerified)

		rotatedAt := now.Add(time.Hour)
		require.NoError(t, repo.RotateSession(ctx, s.ID, "hash-2", rotatedAt))
		_, err = repo.GetSessionByTokenHash(ctx, "hash-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		got, err = repo.GetSessionByTokenHash(ctx, "hash-2")
		require.NoError(t, err)
		assert.True(t, rotatedAt.Equal(got.LastRotationAt))

		require.NoError(t, repo.SetMFAVerified(ctx, s.ID))
		got, err = repo.GetSessionByTokenHash(ctx, "hash-2")
		require.NoError(t, err)
		assert.True(t, got.MFAVerified)

		require.NoError(t, repo.DeleteSession(ctx, s.ID))
		_, err = repo.GetSessionByTokenHash(ctx, "hash-2")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, repo.DeleteSession(ctx, s.ID), ErrSessionNotFound)
		assert.ErrorIs(t, repo.RotateSession(ctx, s.ID, "hash-3", now), ErrSessionNotFound)
	})

	t.Run("expired sessions", func(t *testing.T) {
		expired := &models.Session{
			ID: uuid.NewString(), RepID: rep.ID, TokenHash: "old",
			CreatedAt: now.Add(-8 * 24 * time.Hour), LastRotationAt: now.Add(-8 * 24 * time.Hour),
			ExpiresAt: now.Add(-time.Hour),
		}
		live := &models.Session{
			ID: uuid.NewString(), RepID: rep.ID, TokenHash: "live",
			CreatedAt: now, LastRotationAt: now, ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, repo.CreateSession(ctx, expired))
		require.NoError(t, repo.CreateSession(ctx, live))

		n, err := repo.DeleteExpiredSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.GetSessionByTokenHash(ctx, "live")
		assert.NoError(t, err)
	})

	t.Run("activity", func(t *testing.T) {
		for i, typ := range []string{models.ActivityLogin, models.ActivityMFAVerified, models.ActivityLogout} {
			require.NoError(t, repo.LogActivity(ctx, &models.Activity{
				ID:             uuid.NewString(),
				RepID:          rep.ID,
				Type:           typ,
				HashedIdentity: "abcdef0123456789",
				Details:        map[string]any{"step": float64(i)},
				CreatedAt:      now.Add(time.Duration(i) * time.Minute),
			}))
		}

		got, err := repo.ListActivity(ctx, rep.ID, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, models.ActivityLogout, got[0].Type)
		assert.Equal(t, float64(2), got[0].Details["step"])

		all, err := repo.ListActivity(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestInMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewInMemoryRepository())
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateRep(ctx, &models.Rep{ID: "r1", Username: "a", Active: true}))

	got, err := repo.GetRepByID(ctx, "r1")
	require.NoError(t, err)
	got.Active = false

	again, err := repo.GetRepByID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, again.Active)
}
