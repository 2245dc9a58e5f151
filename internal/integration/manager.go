package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	"github.com/keeply-app/keeply-server/internal/calendar"
	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/gmail"
	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/outlook"
	"github.com/keeply-app/keeply-server/internal/store"
	"github.com/keeply-app/keeply-server/internal/tracing"
)

const (
	// refreshMargin is the safety window before expiry within which a token
	// is refreshed rather than used as-is.
	refreshMargin = 60 * time.Second

	// providerTimeout bounds every call to a provider token endpoint.
	providerTimeout = 10 * time.Second
)

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keeply",
	Subsystem: "integration",
	Name:      "token_refreshes_total",
	Help:      "Token refresh attempts against provider token endpoints.",
}, []string{"family", "outcome"})

// Token is a provider access token ready for use.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Manager owns the token lifecycle for provider integrations: it loads
// stored credentials, refreshes them when they are about to expire, persists
// the outcome and hands out clients bound to a valid access token.
//
// Refreshes for the same (user, family) pair are collapsed through
// singleflight so concurrent requests cannot race on a one-time-use refresh
// token.
type Manager struct {
	store  store.IntegrationStore
	google *oauth2.Config
	msft   *oauth2.Config
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager. Provider client credentials may be absent;
// operations needing them fail with ErrCredentialsMissing.
func NewManager(st store.IntegrationStore, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store: st,
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		},
		msft: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a valid access token for the user and family, refreshing it
// through the provider's token endpoint only when it expires within the
// safety margin.
func (m *Manager) Token(ctx context.Context, userID string, family Family) (*Token, error) {
	return m.token(ctx, userID, family, false)
}

// Refresh forces a refresh regardless of stored expiry and returns the new
// token. Backs the manual-refresh endpoint.
func (m *Manager) Refresh(ctx context.Context, userID string, family Family) (*Token, error) {
	return m.token(ctx, userID, family, true)
}

// Introspect reports the stored access token without contacting the
// provider. An expired token is ErrTokenExpired; refreshing is left to the
// caller so introspection stays side-effect free.
func (m *Manager) Introspect(ctx context.Context, userID string, family Family) (*Token, error) {
	integration, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("load integration: %w", err)
	}

	access, _, expiresAt := credentialsFor(integration, family)
	if access == "" {
		return nil, ErrNotConfigured
	}
	if expiresAt != nil && !expiresAt.After(m.now()) {
		return nil, ErrTokenExpired
	}

	tok := &Token{AccessToken: access}
	if expiresAt != nil {
		tok.ExpiresAt = *expiresAt
	}
	return tok, nil
}

// GmailClient returns a Gmail API client authorized for the user.
func (m *Manager) GmailClient(ctx context.Context, userID string) (*gmail.Client, error) {
	tok, err := m.Token(ctx, userID, FamilyGoogle)
	if err != nil {
		return nil, err
	}
	return gmail.NewClient(ctx, tok.AccessToken)
}

// CalendarClient returns a Google Calendar API client authorized for the user.
func (m *Manager) CalendarClient(ctx context.Context, userID string) (*calendar.Client, error) {
	tok, err := m.Token(ctx, userID, FamilyGoogle)
	if err != nil {
		return nil, err
	}
	return calendar.NewClient(ctx, tok.AccessToken)
}

// OutlookClient returns a Microsoft Graph client authorized for the user.
func (m *Manager) OutlookClient(ctx context.Context, userID string) (*outlook.Client, error) {
	tok, err := m.Token(ctx, userID, FamilyMicrosoft)
	if err != nil {
		return nil, err
	}
	return outlook.NewClient(tok.AccessToken), nil
}

func (m *Manager) token(ctx context.Context, userID string, family Family, force bool) (*Token, error) {
	conf, err := m.oauthConfig(family)
	if err != nil {
		return nil, err
	}

	integration, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("load integration: %w", err)
	}

	access, refresh, expiresAt := credentialsFor(integration, family)
	if access == "" {
		return nil, ErrNotConfigured
	}

	// Token still comfortably valid: use it without a provider round-trip.
	if !force && expiresAt != nil && expiresAt.After(m.now().Add(refreshMargin)) {
		return &Token{AccessToken: access, ExpiresAt: *expiresAt}, nil
	}

	if refresh == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrNotConfigured)
	}

	// The refresh must not die with the first caller: collapsed waiters
	// share its outcome, and the one-time-use refresh token may already be
	// spent. providerTimeout still bounds the call.
	key := userID + "/" + string(family)
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), conf, userID, family, refresh)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

// refresh exchanges the refresh token and persists the result. The stored
// refresh token is only overwritten when the provider rotated it; a response
// that omits it must not clobber the stored value.
func (m *Manager) refresh(ctx context.Context, conf *oauth2.Config, userID string, family Family, refreshToken string) (*Token, error) {
	ctx, span := tracing.Tracer("integration").Start(ctx, "token.refresh")
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	ts := conf.TokenSource(tctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		refreshesTotal.WithLabelValues(string(family), logging.StatusError).Inc()
		cerr := classifyProviderError(err)
		span.RecordError(cerr)
		m.logger.Warn("token refresh failed",
			logging.Operation("refresh"),
			logging.Provider(string(family)),
			logging.UserID(userID),
			logging.Err(cerr),
		)
		return nil, cerr
	}
	refreshesTotal.WithLabelValues(string(family), logging.StatusSuccess).Inc()

	expiresAt := tok.Expiry.UTC()
	patch := store.IntegrationPatch{}
	switch family {
	case FamilyGoogle:
		patch.GoogleAccessToken = &tok.AccessToken
		patch.GoogleTokenExpiresAt = &expiresAt
		if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
			patch.GoogleRefreshToken = &tok.RefreshToken
		}
	case FamilyMicrosoft:
		patch.OutlookAccessToken = &tok.AccessToken
		patch.OutlookTokenExpiresAt = &expiresAt
		if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
			patch.OutlookRefreshToken = &tok.RefreshToken
		}
	}

	if _, err := m.store.Upsert(ctx, userID, patch); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	m.logger.Debug("token refreshed",
		logging.Operation("refresh"),
		logging.Provider(string(family)),
		logging.UserID(userID),
		"access_token", logging.SanitizeToken(tok.AccessToken),
	)

	return &Token{AccessToken: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

func (m *Manager) oauthConfig(family Family) (*oauth2.Config, error) {
	switch family {
	case FamilyGoogle:
		if m.google.ClientID == "" || m.google.ClientSecret == "" {
			return nil, fmt.Errorf("%w: google", ErrCredentialsMissing)
		}
		return m.google, nil
	case FamilyMicrosoft:
		if m.msft.ClientID == "" || m.msft.ClientSecret == "" {
			return nil, fmt.Errorf("%w: microsoft", ErrCredentialsMissing)
		}
		return m.msft, nil
	default:
		return nil, fmt.Errorf("unknown token family %q", family)
	}
}

// credentialsFor extracts the stored token tuple for a family.
func credentialsFor(i *store.UserIntegration, family Family) (access, refresh string, expiresAt *time.Time) {
	switch family {
	case FamilyGoogle:
		if i.GoogleAccessToken != nil {
			access = *i.GoogleAccessToken
		}
		if i.GoogleRefreshToken != nil {
			refresh = *i.GoogleRefreshToken
		}
		expiresAt = i.GoogleTokenExpiresAt
	case FamilyMicrosoft:
		if i.OutlookAccessToken != nil {
			access = *i.OutlookAccessToken
		}
		if i.OutlookRefreshToken != nil {
			refresh = *i.OutlookRefreshToken
		}
		expiresAt = i.OutlookTokenExpiresAt
	}
	return access, refresh, expiresAt
}

// classifyProviderError maps a token endpoint failure onto the taxonomy: a
// provider 4xx means our credentials are no longer good, anything else is a
// transport problem.
func classifyProviderError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderAuth, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
