package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keeply-app/keeply-server/internal/integration"
	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/oauthflow"
	"github.com/keeply-app/keeply-server/internal/store"
)

// providerStatus is the per-integration slice of the status response.
type providerStatus struct {
	Enabled      bool       `json:"enabled"`
	Connected    bool       `json:"connected"`
	TokenExpires *time.Time `json:"tokenExpires"`
}

// statusResponse reports all three logical integrations. Gmail and Google
// Calendar share one stored grant but keep independent enable flags.
type statusResponse struct {
	GoogleCalendar providerStatus  `json:"googleCalendar"`
	Gmail          providerStatus  `json:"gmail"`
	Outlook        providerStatus  `json:"outlook"`
	Settings       json.RawMessage `json:"settings,omitempty"`
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type callbackResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AccessToken string `json:"accessToken,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Scopes      []string  `json:"scopes"`
}

// pathFamily resolves the {provider} URL segment into a token family.
func pathFamily(r *http.Request) (integration.Family, error) {
	return integration.ParseFamily(chi.URLParam(r, "provider"))
}

func (s *Server) handleIntegrationStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	row, err := s.integrations.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No row yet: everything disabled and disconnected.
			writeJSON(w, http.StatusOK, statusResponse{})
			return
		}
		s.logger.Error("load integration status",
			logging.Operation("status"), logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		GoogleCalendar: providerStatus{
			Enabled:      row.GoogleCalendarEnabled,
			Connected:    row.GoogleConnected(),
			TokenExpires: row.GoogleTokenExpiresAt,
		},
		Gmail: providerStatus{
			Enabled:      row.GmailEnabled,
			Connected:    row.GoogleConnected(),
			TokenExpires: row.GoogleTokenExpiresAt,
		},
		Outlook: providerStatus{
			Enabled:      row.OutlookEnabled,
			Connected:    row.OutlookConnected(),
			TokenExpires: row.OutlookTokenExpiresAt,
		},
		Settings: row.Settings,
	})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	family, err := pathFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown integration")
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	authURL, err := s.flow.AuthURL(userID, family)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authURLResponse{AuthURL: authURL})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	family, err := pathFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown integration")
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" || req.State == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	row, err := s.flow.Complete(r.Context(), userID, family, req.Code, req.State)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	resp := callbackResponse{Success: true}
	switch family {
	case integration.FamilyGoogle:
		resp.Message = "Google integration connected"
		if row.GoogleAccessToken != nil {
			resp.AccessToken = *row.GoogleAccessToken
		}
	case integration.FamilyMicrosoft:
		resp.Message = "Outlook integration connected"
		if row.OutlookAccessToken != nil {
			resp.AccessToken = *row.OutlookAccessToken
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTokens is pure introspection: it reports the stored token and never
// refreshes. An expired token answers 401 with needsRefresh so the frontend
// knows to call the refresh endpoint.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	family, err := pathFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown integration")
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	tok, err := s.manager.Introspect(r.Context(), userID, family)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(tok, family))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	family, err := pathFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown integration")
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	tok, err := s.manager.Refresh(r.Context(), userID, family)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(tok, family))
}

func newTokenResponse(tok *integration.Token, family integration.Family) tokenResponse {
	scopes := oauthflow.GoogleScopes
	if family == integration.FamilyMicrosoft {
		scopes = oauthflow.MicrosoftScopes
	}
	return tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
		Scopes:      scopes,
	}
}
