package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/integration"
	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/store"
	"github.com/keeply-app/keeply-server/internal/tracing"
)

// GoogleScopes is the fixed scope list requested from Google. One grant
// covers both Calendar and Gmail.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/gmail.modify",
	"openid",
	"email",
	"profile",
}

// MicrosoftScopes is the fixed scope list requested from the Microsoft
// identity platform. offline_access is what makes a refresh token issued.
var MicrosoftScopes = []string{
	"https://graph.microsoft.com/calendars.readwrite",
	"https://graph.microsoft.com/mail.readwrite",
	"offline_access",
	"openid",
	"profile",
	"email",
}

// exchangeTimeout bounds the authorization-code-for-token exchange.
const exchangeTimeout = 10 * time.Second

// Flow implements the redirect-based OAuth authorization sequence: it builds
// provider authorization URLs and completes the code-for-token exchange,
// initializing or updating the credential store.
type Flow struct {
	store  store.IntegrationStore
	google *oauth2.Config
	msft   *oauth2.Config
	secret []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewFlow creates a Flow from process configuration. The frontend hosts the
// callback pages and posts the received code back to us, so redirect URIs
// point at FRONTEND_URL.
func NewFlow(st store.IntegrationStore, cfg *config.Config, logger *slog.Logger) *Flow {
	return &Flow{
		store: st,
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.FrontendURL + "/integrations/google/callback",
			Scopes:       GoogleScopes,
		},
		msft: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			RedirectURL:  cfg.FrontendURL + "/integrations/outlook/callback",
			Scopes:       MicrosoftScopes,
		},
		secret: []byte(cfg.AuthSecret),
		logger: logger,
		now:    time.Now,
	}
}

// AuthURL builds the provider authorization URL for the user. The state
// parameter is a signed token bound to the user; Google is asked for offline
// access with forced consent so a refresh token is always issued.
func (f *Flow) AuthURL(userID string, family integration.Family) (string, error) {
	conf, err := f.oauthConfig(family)
	if err != nil {
		return "", err
	}

	state, err := f.signState(userID, family)
	if err != nil {
		return "", err
	}

	switch family {
	case integration.FamilyGoogle:
		return conf.AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		), nil
	default:
		return conf.AuthCodeURL(state,
			oauth2.SetAuthURLParam("response_mode", "query"),
		), nil
	}
}

// Complete exchanges the authorization code and persists the issued tokens.
// A Google grant enables both the Calendar and Gmail integrations; Outlook
// only its own. The exchange is not retried: on failure the user restarts
// the flow.
func (f *Flow) Complete(ctx context.Context, userID string, family integration.Family, code, state string) (*store.UserIntegration, error) {
	conf, err := f.oauthConfig(family)
	if err != nil {
		return nil, err
	}

	if err := f.verifyState(state, userID, family); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer("oauthflow").Start(ctx, "oauth.exchange")
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := conf.Exchange(tctx, code)
	if err != nil {
		cerr := classifyExchangeError(err)
		span.RecordError(cerr)
		f.logger.Warn("authorization code exchange failed",
			logging.Operation("complete_authorization"),
			logging.Provider(string(family)),
			logging.UserID(userID),
			logging.Err(cerr),
		)
		return nil, cerr
	}

	expiresAt := tok.Expiry.UTC()
	enabled := true

	patch := store.IntegrationPatch{}
	switch family {
	case integration.FamilyGoogle:
		patch.GoogleCalendarEnabled = &enabled
		patch.GmailEnabled = &enabled
		patch.GoogleAccessToken = &tok.AccessToken
		patch.GoogleTokenExpiresAt = &expiresAt
		if tok.RefreshToken != "" {
			patch.GoogleRefreshToken = &tok.RefreshToken
		}
	case integration.FamilyMicrosoft:
		patch.OutlookEnabled = &enabled
		patch.OutlookAccessToken = &tok.AccessToken
		patch.OutlookTokenExpiresAt = &expiresAt
		if tok.RefreshToken != "" {
			patch.OutlookRefreshToken = &tok.RefreshToken
		}
	}

	result, err := f.store.Upsert(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("persist authorized tokens: %w", err)
	}

	f.logger.Info("integration authorized",
		logging.Operation("complete_authorization"),
		logging.Provider(string(family)),
		logging.UserID(userID),
	)

	return result, nil
}

func (f *Flow) oauthConfig(family integration.Family) (*oauth2.Config, error) {
	switch family {
	case integration.FamilyGoogle:
		if f.google.ClientID == "" || f.google.ClientSecret == "" {
			return nil, fmt.Errorf("%w: google", integration.ErrCredentialsMissing)
		}
		return f.google, nil
	case integration.FamilyMicrosoft:
		if f.msft.ClientID == "" || f.msft.ClientSecret == "" {
			return nil, fmt.Errorf("%w: microsoft", integration.ErrCredentialsMissing)
		}
		return f.msft, nil
	default:
		return nil, fmt.Errorf("unknown token family %q", family)
	}
}

// classifyExchangeError maps a failed code exchange onto the taxonomy. A
// provider 4xx means the code was bad or already used; transport failures
// stay retryable.
func classifyExchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", integration.ErrProviderUnavailable, err)
		}
		return fmt.Errorf("%w: %v", integration.ErrExchangeFailed, err)
	}
	return fmt.Errorf("%w: %v", integration.ErrProviderUnavailable, err)
}
