package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris/libris/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, s Session) error
	SessionExists(ctx context.Context, token string) (bool, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT id, email, username, password_hash, is_active, created_at, updated_at
FROM users WHERE lower(email) = lower($1)`
	var (
		user     User
		username pgtype.Text
	)
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &username, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if username.Valid {
		name := username.String
		user.Username = &name
	}
	return &user, nil
}

// CreateSession persists the session row for a freshly issued token.
func (r *PGRepository) CreateSession(ctx context.Context, s Session) error {
	const query = `INSERT INTO sessions (token, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, query,
		s.Token,
		s.UserID,
		pgtype.Timestamptz{Time: createdAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: s.ExpiresAt.UTC(), Valid: true},
		pgtype.Text{String: s.IP, Valid: s.IP != ""},
		pgtype.Text{String: s.UserAgent, Valid: s.UserAgent != ""},
	)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// SessionExists reports whether a session row exists for the token.
func (r *PGRepository) SessionExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteSession removes a session record. Deleting a missing record is not an error.
func (r *PGRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// PurgeExpiredSessions deletes sessions that expired before the given instant.
func (r *PGRepository) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateUser inserts an active user, or refreshes the password of an existing
// account with the same email.
func (r *PGRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	const query = `INSERT INTO users (email, username, password_hash, is_active)
VALUES (lower($1), $2, $3, TRUE)
ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, is_active = TRUE, updated_at = NOW()
RETURNING id, created_at, updated_at`
	var username pgtype.Text
	if u.Username != nil {
		username = pgtype.Text{String: *u.Username, Valid: *u.Username != ""}
	}
	created := u
	created.Email = strings.ToLower(u.Email)
	created.IsActive = true
	if err := r.pool.QueryRow(ctx, query, u.Email, username, u.PasswordHash).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return &created, nil
}

var _ Repository = (*PGRepository)(nil)
