package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahnavardnetwork/sos/common/database"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// =============================================================================
// REPS
// =============================================================================

func (r *PostgresRepository) CreateRep(ctx context.Context, rep *models.Rep) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO reps (id, username, email, full_name, role, password_hash, is_active, mfa_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		rep.ID, rep.Username, rep.Email, rep.FullName, rep.Role,
		rep.PasswordHash, rep.Active, rep.MFAEnabled,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrRepExists
		}
		return fmt.Errorf("failed to create rep: %w", err)
	}

	return nil
}

const repColumns = `id, username, email, full_name, role, password_hash, is_active, mfa_enabled, created_at`

func scanRep(row pgx.Row) (*models.Rep, error) {
	var rep models.Rep
	err := row.Scan(
		&rep.ID, &rep.Username, &rep.Email, &rep.FullName, &rep.Role,
		&rep.PasswordHash, &rep.Active, &rep.MFAEnabled, &rep.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRepNotFound
		}
		return nil, err
	}
	return &rep, nil
}

func (r *PostgresRepository) GetRepByID(ctx context.Context, id string) (*models.Rep, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rep, err := scanRep(r.pool.QueryRow(ctx, `SELECT `+repColumns+` FROM reps WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrRepNotFound) {
		return nil, fmt.Errorf("failed to get rep: %w", err)
	}
	return rep, err
}

func (r *PostgresRepository) GetRepByUsername(ctx context.Context, username string) (*models.Rep, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rep, err := scanRep(r.pool.QueryRow(ctx, `SELECT `+repColumns+` FROM reps WHERE username = $1`, username))
	if err != nil && !errors.Is(err, ErrRepNotFound) {
		return nil, fmt.Errorf("failed to get rep by username: %w", err)
	}
	return rep, err
}

// =============================================================================
// SESSIONS
// =============================================================================

func (r *PostgresRepository) CreateSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO rep_sessions (id, rep_id, token_hash, fingerprint, created_at, last_rotation_at, expires_at, mfa_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.RepID, session.TokenHash, session.Fingerprint,
		session.CreatedAt, session.LastRotationAt, session.ExpiresAt, session.MFAVerified,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, rep_id, token_hash, fingerprint, created_at, last_rotation_at, expires_at, mfa_verified
		FROM rep_sessions
		WHERE token_hash = $1
	`

	var s models.Session
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID, &s.RepID, &s.TokenHash, &s.Fingerprint,
		&s.CreatedAt, &s.LastRotationAt, &s.ExpiresAt, &s.MFAVerified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

func (r *PostgresRepository) RotateSession(ctx context.Context, id, tokenHash string, rotatedAt time.Time) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`UPDATE rep_sessions SET token_hash = $2, last_rotation_at = $3 WHERE id = $1`,
		id, tokenHash, rotatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) SetMFAVerified(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `UPDATE rep_sessions SET mfa_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark session mfa verified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM rep_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM rep_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// =============================================================================
// ACTIVITY
// =============================================================================

func (r *PostgresRepository) LogActivity(ctx context.Context, activity *models.Activity) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var details []byte
	if activity.Details != nil {
		var err error
		details, err = json.Marshal(activity.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal activity details: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO rep_activity (id, rep_id, activity_type, hashed_identity, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, activity.ID, activity.RepID, activity.Type, activity.HashedIdentity, details, activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActivity(ctx context.Context, repID string, limit int) ([]*models.Activity, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, rep_id, activity_type, hashed_identity, details, created_at
		FROM rep_activity
		WHERE ($1 = '' OR rep_id::text = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, repID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []*models.Activity
	for rows.Next() {
		var a models.Activity
		var details []byte
		if err := rows.Scan(&a.ID, &a.RepID, &a.Type, &a.HashedIdentity, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("failed to decode activity details: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
