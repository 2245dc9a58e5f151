package integration

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/store"
)

func testManager(t *testing.T) (*Manager, *store.MemoryIntegrationStore) {
	t.Helper()
	st := store.NewMemoryIntegrationStore()
	cfg := &config.Config{
		GoogleClientID:        "google-id",
		GoogleClientSecret:    "google-secret",
		MicrosoftClientID:     "ms-id",
		MicrosoftClientSecret: "ms-secret",
	}
	return NewManager(st, cfg, slog.Default()), st
}

func seedGoogle(t *testing.T, st *store.MemoryIntegrationStore, access, refresh string, expiresAt time.Time) {
	t.Helper()
	enabled := true
	patch := store.IntegrationPatch{
		GoogleCalendarEnabled: &enabled,
		GmailEnabled:          &enabled,
		GoogleAccessToken:     &access,
		GoogleTokenExpiresAt:  &expiresAt,
	}
	if refresh != "" {
		patch.GoogleRefreshToken = &refresh
	}
	_, err := st.Upsert(context.Background(), "user-1", patch)
	require.NoError(t, err)
}

func tokenEndpoint(t *testing.T, status int, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestTokenNotConfigured(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenNoAccessTokenStored(t *testing.T) {
	m, st := testManager(t)

	enabled := true
	_, err := st.Upsert(context.Background(), "user-1", store.IntegrationPatch{
		GmailEnabled: &enabled,
	})
	require.NoError(t, err)

	_, err = m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenUsesStoredTokenWhileValid(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "stored-access", "stored-refresh", time.Now().Add(time.Hour))

	var hits atomic.Int64
	ts := tokenEndpoint(t, http.StatusOK, `{"access_token":"new"}`, &hits)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	tok, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	require.NoError(t, err)

	assert.Equal(t, "stored-access", tok.AccessToken)
	assert.Equal(t, int64(0), hits.Load(), "valid token must not hit the provider")
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "stored-refresh", time.Now().Add(10*time.Second))

	ts := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"new-access","expires_in":3600,"token_type":"Bearer"}`, nil)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	tok, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)

	// The provider did not rotate the refresh token; the stored one must
	// survive the write-back.
	row, err := st.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row.GoogleAccessToken)
	assert.Equal(t, "new-access", *row.GoogleAccessToken)
	require.NotNil(t, row.GoogleRefreshToken)
	assert.Equal(t, "stored-refresh", *row.GoogleRefreshToken)
	require.NotNil(t, row.GoogleTokenExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *row.GoogleTokenExpiresAt, 5*time.Second)
}

func TestTokenPersistsRotatedRefreshToken(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "old-refresh", time.Now().Add(-time.Minute))

	ts := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`, nil)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	_, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	require.NoError(t, err)

	row, err := st.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row.GoogleRefreshToken)
	assert.Equal(t, "new-refresh", *row.GoogleRefreshToken)
}

func TestRefreshForcesProviderCall(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "stored-access", "stored-refresh", time.Now().Add(time.Hour))

	var hits atomic.Int64
	ts := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"forced","expires_in":3600}`, &hits)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	tok, err := m.Refresh(context.Background(), "user-1", FamilyGoogle)
	require.NoError(t, err)

	assert.Equal(t, "forced", tok.AccessToken)
	assert.Equal(t, int64(1), hits.Load())
}

func TestTokenProviderRejectsRefresh(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "revoked-refresh", time.Now().Add(-time.Minute))

	ts := tokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	before, err := st.Get(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrProviderAuth)

	// Failed refresh must leave the row untouched.
	after, err := st.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTokenProviderDown(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "stored-refresh", time.Now().Add(-time.Minute))

	ts := tokenEndpoint(t, http.StatusBadGateway, `upstream error`, nil)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	_, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestTokenNoRefreshTokenStored(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "", time.Now().Add(-time.Minute))

	_, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenMissingClientCredentials(t *testing.T) {
	st := store.NewMemoryIntegrationStore()
	m := NewManager(st, &config.Config{}, slog.Default())

	_, err := m.Token(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestIntrospectReturnsStoredToken(t *testing.T) {
	m, st := testManager(t)
	expires := time.Now().Add(time.Hour)
	seedGoogle(t, st, "stored-access", "stored-refresh", expires)

	tok, err := m.Introspect(context.Background(), "user-1", FamilyGoogle)
	require.NoError(t, err)

	assert.Equal(t, "stored-access", tok.AccessToken)
	assert.WithinDuration(t, expires, tok.ExpiresAt, time.Second)
}

func TestIntrospectExpiredToken(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "stored-refresh", time.Now().Add(-time.Minute))

	var hits atomic.Int64
	ts := tokenEndpoint(t, http.StatusOK, `{"access_token":"new"}`, &hits)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	_, err := m.Introspect(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Introspection never refreshes.
	assert.Equal(t, int64(0), hits.Load())
}

func TestIntrospectNotConfigured(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Introspect(context.Background(), "user-1", FamilyGoogle)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRefreshSurvivesCallerCancel(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "one-time-refresh", time.Now().Add(-time.Minute))

	ts := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"fresh","expires_in":3600}`, nil)
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The refresh spends a one-time-use token, so it runs to completion and
	// persists even when the initiating request has gone away.
	tok, err := m.Token(ctx, "user-1", FamilyGoogle)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	row, err := st.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row.GoogleAccessToken)
	assert.Equal(t, "fresh", *row.GoogleAccessToken)
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	m, st := testManager(t)
	seedGoogle(t, st, "old-access", "one-time-refresh", time.Now().Add(-time.Minute))

	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer ts.Close()
	m.google.Endpoint = oauth2.Endpoint{TokenURL: ts.URL}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Token(context.Background(), "user-1", FamilyGoogle)
			assert.NoError(t, err)
			assert.Equal(t, "fresh", tok.AccessToken)
		}()
	}
	wg.Wait()

	// Either the goroutines joined the in-flight refresh, or they arrived
	// after it completed and used the freshly persisted token. In both cases
	// the one-time-use refresh token is exchanged exactly once.
	assert.Equal(t, int64(1), hits.Load())
}

func TestProviderFamily(t *testing.T) {
	tests := []struct {
		provider Provider
		want     Family
		wantErr  bool
	}{
		{ProviderGmail, FamilyGoogle, false},
		{ProviderGoogleCalendar, FamilyGoogle, false},
		{ProviderOutlook, FamilyMicrosoft, false},
		{Provider("dropbox"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			got, err := tt.provider.Family()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
