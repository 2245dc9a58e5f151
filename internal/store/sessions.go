package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SessionRepository implements SessionStore on PostgreSQL.
type SessionRepository struct {
	db Querier
}

// NewSessionRepository creates a PostgreSQL-backed session store.
func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.Token,
		s.UserID,
		s.ExpiresAt,
		s.IPAddress,
		s.UserAgent,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByToken retrieves a session by its opaque token.
// Returns ErrNotFound when no such session exists. Expiry is not checked
// here; callers decide how to treat expired sessions.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at
		FROM sessions
		WHERE token = $1`

	var s Session
	err := r.db.QueryRow(ctx, query, token).Scan(
		&s.ID,
		&s.Token,
		&s.UserID,
		&s.ExpiresAt,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &s, nil
}

// DeleteByToken removes a session, invalidating it immediately.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token = $1`

	ct, err := r.db.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteExpired removes all sessions that expired before now and returns how
// many were deleted. Called periodically by the server.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	ct, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}
