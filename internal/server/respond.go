package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keeply-app/keeply-server/internal/integration"
)

// errorResponse is the JSON error shape the frontend expects.
type errorResponse struct {
	Error string `json:"error"`

	// NeedsRefresh is set on 401 responses where re-running the
	// authorization flow will fix the problem.
	NeedsRefresh bool `json:"needsRefresh,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeIntegrationError maps the integration error taxonomy onto HTTP.
// User-state problems are 4xx, provider outages 502; only genuinely internal
// failures become 500.
func writeIntegrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, integration.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, "integration not connected")
	case errors.Is(err, integration.ErrBadState):
		writeError(w, http.StatusBadRequest, "invalid state parameter")
	case errors.Is(err, integration.ErrExchangeFailed):
		writeError(w, http.StatusBadRequest, "authorization code exchange failed")
	case errors.Is(err, integration.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:        "access token expired",
			NeedsRefresh: true,
		})
	case errors.Is(err, integration.ErrProviderAuth):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:        "provider authorization expired",
			NeedsRefresh: true,
		})
	case errors.Is(err, integration.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider unavailable")
	case errors.Is(err, integration.ErrCredentialsMissing):
		writeError(w, http.StatusInternalServerError, "provider credentials not configured")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
