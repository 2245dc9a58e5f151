package oauthflow

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/integration"
	"github.com/keeply-app/keeply-server/internal/store"
)

func testFlowWithStore(t *testing.T) (*Flow, *store.MemoryIntegrationStore) {
	t.Helper()
	st := store.NewMemoryIntegrationStore()
	cfg := &config.Config{
		FrontendURL:           "http://localhost:5173",
		AuthSecret:            "test-secret",
		GoogleClientID:        "google-id",
		GoogleClientSecret:    "google-secret",
		MicrosoftClientID:     "ms-id",
		MicrosoftClientSecret: "ms-secret",
	}
	return NewFlow(st, cfg, slog.Default()), st
}

// stubTokenEndpoint serves a static token response in the shape provider
// token endpoints use.
func stubTokenEndpoint(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAuthURLGoogle(t *testing.T) {
	f, _ := testFlowWithStore(t)

	rawURL, err := f.AuthURL("user-1", integration.FamilyGoogle)
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "google-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "http://localhost:5173/integrations/google/callback", q.Get("redirect_uri"))

	scopes := strings.Fields(q.Get("scope"))
	assert.Contains(t, scopes, "https://www.googleapis.com/auth/calendar")
	assert.Contains(t, scopes, "https://www.googleapis.com/auth/gmail.modify")
	assert.Contains(t, scopes, "openid")

	// The state must verify for the issuing user only.
	require.NoError(t, f.verifyState(q.Get("state"), "user-1", integration.FamilyGoogle))
	require.Error(t, f.verifyState(q.Get("state"), "user-2", integration.FamilyGoogle))
}

func TestAuthURLMicrosoft(t *testing.T) {
	f, _ := testFlowWithStore(t)

	rawURL, err := f.AuthURL("user-1", integration.FamilyMicrosoft)
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "login.microsoftonline.com", u.Host)
	assert.Equal(t, "query", q.Get("response_mode"))
	assert.Equal(t, "http://localhost:5173/integrations/outlook/callback", q.Get("redirect_uri"))

	scopes := strings.Fields(q.Get("scope"))
	assert.Contains(t, scopes, "https://graph.microsoft.com/calendars.readwrite")
	assert.Contains(t, scopes, "https://graph.microsoft.com/mail.readwrite")
	assert.Contains(t, scopes, "offline_access")
}

func TestAuthURLMissingCredentials(t *testing.T) {
	f, _ := testFlowWithStore(t)
	f.google.ClientID = ""

	_, err := f.AuthURL("user-1", integration.FamilyGoogle)
	assert.ErrorIs(t, err, integration.ErrCredentialsMissing)
}

func TestCompleteGoogle(t *testing.T) {
	f, st := testFlowWithStore(t)

	ts := stubTokenEndpoint(t, http.StatusOK,
		`{"access_token":"A","refresh_token":"R","expires_in":3600,"token_type":"Bearer"}`)
	f.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	state, err := f.signState("user-1", integration.FamilyGoogle)
	require.NoError(t, err)

	before := time.Now()
	result, err := f.Complete(context.Background(), "user-1", integration.FamilyGoogle, "code-1", state)
	require.NoError(t, err)

	// One Google grant turns on both integrations with a shared token pair.
	assert.True(t, result.GoogleCalendarEnabled)
	assert.True(t, result.GmailEnabled)
	require.NotNil(t, result.GoogleAccessToken)
	assert.Equal(t, "A", *result.GoogleAccessToken)
	require.NotNil(t, result.GoogleRefreshToken)
	assert.Equal(t, "R", *result.GoogleRefreshToken)

	require.NotNil(t, result.GoogleTokenExpiresAt)
	want := before.Add(3600 * time.Second)
	assert.WithinDuration(t, want, *result.GoogleTokenExpiresAt, time.Second)

	// Outlook fields untouched.
	assert.False(t, result.OutlookEnabled)
	assert.Nil(t, result.OutlookAccessToken)

	assert.Equal(t, 1, st.Len())
}

func TestCompleteOutlook(t *testing.T) {
	f, _ := testFlowWithStore(t)

	ts := stubTokenEndpoint(t, http.StatusOK,
		`{"access_token":"OA","refresh_token":"OR","expires_in":1800,"token_type":"Bearer"}`)
	f.msft.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	state, err := f.signState("user-1", integration.FamilyMicrosoft)
	require.NoError(t, err)

	result, err := f.Complete(context.Background(), "user-1", integration.FamilyMicrosoft, "code-1", state)
	require.NoError(t, err)

	assert.True(t, result.OutlookEnabled)
	require.NotNil(t, result.OutlookAccessToken)
	assert.Equal(t, "OA", *result.OutlookAccessToken)

	// The Google integration is not affected by an Outlook grant.
	assert.False(t, result.GmailEnabled)
	assert.Nil(t, result.GoogleAccessToken)
}

func TestCompleteTwiceKeepsOneRow(t *testing.T) {
	f, st := testFlowWithStore(t)

	ts := stubTokenEndpoint(t, http.StatusOK,
		`{"access_token":"A2","refresh_token":"R2","expires_in":3600,"token_type":"Bearer"}`)
	f.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	for i := 0; i < 2; i++ {
		state, err := f.signState("user-1", integration.FamilyGoogle)
		require.NoError(t, err)
		_, err = f.Complete(context.Background(), "user-1", integration.FamilyGoogle, "code", state)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, st.Len())
}

func TestCompleteExchangeRejected(t *testing.T) {
	f, st := testFlowWithStore(t)

	ts := stubTokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	f.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	state, err := f.signState("user-1", integration.FamilyGoogle)
	require.NoError(t, err)

	_, err = f.Complete(context.Background(), "user-1", integration.FamilyGoogle, "bad-code", state)
	assert.ErrorIs(t, err, integration.ErrExchangeFailed)

	// Nothing was written.
	assert.Equal(t, 0, st.Len())
}

func TestCompleteBadState(t *testing.T) {
	f, _ := testFlowWithStore(t)

	_, err := f.Complete(context.Background(), "user-1", integration.FamilyGoogle, "code", "user_user-1")
	assert.ErrorIs(t, err, integration.ErrBadState)
}
