package server

import (
	"net/http"
	"strconv"

	"github.com/keeply-app/keeply-server/internal/logging"
)

// pageParams reads the common pagination query parameters. maxResults of 0
// lets each client apply its own default.
func pageParams(r *http.Request) (maxResults int64, pageToken string) {
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxResults = n
		}
	}
	return maxResults, r.URL.Query().Get("pageToken")
}

func (s *Server) handleGmailMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	client, err := s.manager.GmailClient(r.Context(), userID)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	maxResults, pageToken := pageParams(r)
	res, err := client.ListMessages(r.Context(), maxResults, pageToken)
	if err != nil {
		s.logger.Error("gmail proxy failed",
			logging.Operation("list_messages"), logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	client, err := s.manager.CalendarClient(r.Context(), userID)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	maxResults, pageToken := pageParams(r)
	res, err := client.ListEvents(r.Context(), maxResults, pageToken)
	if err != nil {
		s.logger.Error("calendar proxy failed",
			logging.Operation("list_events"), logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOutlookMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	client, err := s.manager.OutlookClient(r.Context(), userID)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	maxResults, pageToken := pageParams(r)
	res, err := client.ListMessages(r.Context(), maxResults, pageToken)
	if err != nil {
		s.logger.Error("outlook proxy failed",
			logging.Operation("list_messages"), logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOutlookEvents(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	client, err := s.manager.OutlookClient(r.Context(), userID)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	res, err := client.ListEvents(r.Context())
	if err != nil {
		s.logger.Error("outlook proxy failed",
			logging.Operation("list_events"), logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
