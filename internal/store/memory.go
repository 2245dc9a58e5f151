package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIntegrationStore is an in-memory IntegrationStore with the same
// merge-upsert semantics as the PostgreSQL repository. Used in tests and by
// code that needs a store without a database.
type MemoryIntegrationStore struct {
	mu   sync.Mutex
	rows map[string]*UserIntegration
	now  func() time.Time
}

// NewMemoryIntegrationStore creates an empty in-memory store.
func NewMemoryIntegrationStore() *MemoryIntegrationStore {
	return &MemoryIntegrationStore{
		rows: make(map[string]*UserIntegration),
		now:  time.Now,
	}
}

// Get retrieves the integration row for a user.
func (m *MemoryIntegrationStore) Get(_ context.Context, userID string) (*UserIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *row
	return &copied, nil
}

// Upsert merges the patch into the user's row, creating it when absent.
func (m *MemoryIntegrationStore) Upsert(_ context.Context, userID string, patch IntegrationPatch) (*UserIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	row, ok := m.rows[userID]
	if !ok {
		row = &UserIntegration{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
		m.rows[userID] = row
	}

	if patch.GoogleCalendarEnabled != nil {
		row.GoogleCalendarEnabled = *patch.GoogleCalendarEnabled
	}
	if patch.GmailEnabled != nil {
		row.GmailEnabled = *patch.GmailEnabled
	}
	if patch.GoogleAccessToken != nil {
		row.GoogleAccessToken = patch.GoogleAccessToken
	}
	if patch.GoogleRefreshToken != nil {
		row.GoogleRefreshToken = patch.GoogleRefreshToken
	}
	if patch.GoogleTokenExpiresAt != nil {
		row.GoogleTokenExpiresAt = patch.GoogleTokenExpiresAt
	}
	if patch.OutlookEnabled != nil {
		row.OutlookEnabled = *patch.OutlookEnabled
	}
	if patch.OutlookAccessToken != nil {
		row.OutlookAccessToken = patch.OutlookAccessToken
	}
	if patch.OutlookRefreshToken != nil {
		row.OutlookRefreshToken = patch.OutlookRefreshToken
	}
	if patch.OutlookTokenExpiresAt != nil {
		row.OutlookTokenExpiresAt = patch.OutlookTokenExpiresAt
	}
	if patch.Settings != nil {
		row.Settings = patch.Settings
	}
	row.UpdatedAt = now

	copied := *row
	return &copied, nil
}

// Len returns the number of stored rows.
func (m *MemoryIntegrationStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MemoryUserStore is an in-memory UserStore.
type MemoryUserStore struct {
	mu    sync.Mutex
	byID  map[string]*User
	email map[string]string
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:  make(map[string]*User),
		email: make(map[string]string),
	}
}

// Create stores a new user. Returns ErrEmailTaken when the email is in use.
func (m *MemoryUserStore) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.email[user.Email]; ok {
		return ErrEmailTaken
	}
	copied := *user
	m.byID[user.ID] = &copied
	m.email[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by id.
func (m *MemoryUserStore) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetByEmail retrieves a user by email.
func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.email[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.byID[id]
	return &copied, nil
}

// MemorySessionStore is an in-memory SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

// Create stores a new session keyed by its token.
func (m *MemorySessionStore) Create(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.sessions[session.Token] = &copied
	return nil
}

// GetByToken retrieves a session by token. Expiry is the caller's concern.
func (m *MemorySessionStore) GetByToken(_ context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// DeleteByToken removes a session. Returns ErrNotFound when absent.
func (m *MemorySessionStore) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (m *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for token, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}
