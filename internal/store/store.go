package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgxpool.Pool used by the repositories.
// pgxmock satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is a registered account.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is server-side proof of a logged-in user. The session gate only
// reads sessions; they are created on login/registration and removed on
// logout or expiry.
type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// UserIntegration holds a user's third-party provider credentials. There is
// at most one row per user.
//
// A single Google OAuth grant authorizes both Gmail and Calendar, so the
// Google token pair is stored once with two independent enable flags; letting
// two copies drift apart under partial writes was a defect of the previous
// schema. Outlook has its own pair.
type UserIntegration struct {
	ID     string
	UserID string

	GoogleCalendarEnabled bool
	GmailEnabled          bool
	GoogleAccessToken     *string
	GoogleRefreshToken    *string
	GoogleTokenExpiresAt  *time.Time

	OutlookEnabled        bool
	OutlookAccessToken    *string
	OutlookRefreshToken   *string
	OutlookTokenExpiresAt *time.Time

	// Settings is an opaque per-user preference blob, not interpreted here.
	Settings json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GoogleConnected reports whether a Google access token is stored.
// "Connected" and "enabled" are independent: a user may have a valid grant
// with the feature toggled off.
func (i *UserIntegration) GoogleConnected() bool {
	return i.GoogleAccessToken != nil && *i.GoogleAccessToken != ""
}

// OutlookConnected reports whether an Outlook access token is stored.
func (i *UserIntegration) OutlookConnected() bool {
	return i.OutlookAccessToken != nil && *i.OutlookAccessToken != ""
}

// IntegrationPatch is a partial update to a user's integration row. Nil
// fields are left unchanged by Upsert.
type IntegrationPatch struct {
	GoogleCalendarEnabled *bool
	GmailEnabled          *bool
	GoogleAccessToken     *string
	GoogleRefreshToken    *string
	GoogleTokenExpiresAt  *time.Time

	OutlookEnabled        *bool
	OutlookAccessToken    *string
	OutlookRefreshToken   *string
	OutlookTokenExpiresAt *time.Time

	Settings json.RawMessage
}

// IntegrationStore persists per-user provider credentials.
type IntegrationStore interface {
	// Get retrieves the integration row for a user.
	// Returns ErrNotFound when the user has no row.
	Get(ctx context.Context, userID string) (*UserIntegration, error)

	// Upsert merges the patch into the user's row, creating it when absent.
	// updated_at is always stamped. Last writer wins; refreshes are
	// idempotent with respect to the final provider-issued values.
	Upsert(ctx context.Context, userID string, patch IntegrationPatch) (*UserIntegration, error)
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
