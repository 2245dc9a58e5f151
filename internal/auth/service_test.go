package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeply-app/keeply-server/internal/store"
)

func testService(t *testing.T) (*Service, *store.MemorySessionStore) {
	t.Helper()
	sessions := store.NewMemorySessionStore()
	return NewService(store.NewMemoryUserStore(), sessions, slog.Default()), sessions
}

func TestRegisterCreatesUserAndSession(t *testing.T) {
	svc, sessions := testService(t)

	user, session, err := svc.Register(context.Background(), "Ada@Example.com", "Ada", "s3cret-pass", ClientInfo{
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	assert.NotEmpty(t, user.ID)

	require.NotEmpty(t, session.Token)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "203.0.113.7", session.IPAddress)
	assert.WithinDuration(t, time.Now().Add(sessionTTL), session.ExpiresAt, time.Minute)

	stored, err := sessions.GetByToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := testService(t)

	_, _, err := svc.Register(context.Background(), "ada@example.com", "Ada", "pass-one", ClientInfo{})
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), "ADA@example.com", "Other", "pass-two", ClientInfo{})
	assert.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, _ := testService(t)

	registered, _, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	user, session, err := svc.Login(context.Background(), "ada@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, session.Token)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := testService(t)

	_, _, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "ada@example.com", "wrong", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := testService(t)

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	svc, sessions := testService(t)

	_, session, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), session.Token))

	_, err = sessions.GetByToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Logging out again is a no-op, not an error.
	assert.NoError(t, svc.Logout(context.Background(), session.Token))
}

func TestCleanupExpired(t *testing.T) {
	svc, sessions := testService(t)

	_, live, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(-2 * sessionTTL) }
	_, stale, err := svc.Login(context.Background(), "ada@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)
	svc.now = time.Now

	n, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = sessions.GetByToken(context.Background(), stale.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = sessions.GetByToken(context.Background(), live.Token)
	assert.NoError(t, err)
}
