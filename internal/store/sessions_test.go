package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryGetByToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(`SELECT (.+) FROM sessions WHERE token = \$1`).
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "user_id", "expires_at", "ip_address", "user_agent", "created_at", "updated_at",
		}).AddRow("sess-1", "tok-1", "user-1", expires, "127.0.0.1", "curl", now, now))

	repo := NewSessionRepository(mock)
	session, err := repo.GetByToken(context.Background(), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", session.UserID)
	assert.False(t, session.Expired(now))
	assert.True(t, session.Expired(expires.Add(time.Second)))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryGetByTokenNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions WHERE token = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "user_id", "expires_at", "ip_address", "user_agent", "created_at", "updated_at",
		}))

	repo := NewSessionRepository(mock)
	_, err = repo.GetByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepositoryDeleteByToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM sessions WHERE token = \$1`).
		WithArgs("tok-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := NewSessionRepository(mock)
	require.NoError(t, repo.DeleteByToken(context.Background(), "tok-1"))

	mock.ExpectExec(`DELETE FROM sessions WHERE token = \$1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = repo.DeleteByToken(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepositoryDeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewSessionRepository(mock)
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
