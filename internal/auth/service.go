package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/store"
)

// sessionTTL is how long a login session stays valid.
const sessionTTL = 7 * 24 * time.Hour

// ErrInvalidCredentials is returned when the email is unknown or the password
// does not match. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ClientInfo is request metadata recorded on the session.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Service implements account registration and session-based login.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an auth service.
func NewService(users store.UserStore, sessions store.SessionStore, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates an account and logs it in. Returns store.ErrEmailTaken when
// the email already has an account.
func (s *Service) Register(ctx context.Context, email, name, password string, client ClientInfo) (*store.User, *store.Session, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user.ID, client)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered",
		logging.Operation("register"),
		logging.UserID(user.ID),
	)
	return user, session, nil
}

// Login verifies the password and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (*store.User, *store.Session, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.ID, client)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user logged in",
		logging.Operation("login"),
		logging.UserID(user.ID),
	)
	return user, session, nil
}

// Logout removes the session. Logging out an already-removed session is not
// an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.sessions.DeleteByToken(ctx, token)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes sessions past their expiry and returns how many were
// deleted. Run periodically from the server loop.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}

func (s *Service) createSession(ctx context.Context, userID string, client ClientInfo) (*store.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &store.Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(sessionTTL),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// newSessionToken returns an opaque 256-bit random token.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
