package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/keeply-app/keeply-server/internal/auth"
	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, session, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("registration failed", logging.Operation("register"), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusCreated, newSessionResponse(user, session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, session, err := s.auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.logger.Error("login failed", logging.Operation("login"), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, newSessionResponse(user, session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, reasonNoCredential)
		return
	}

	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.logger.Error("logout failed", logging.Operation("logout"), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookieName(),
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func newSessionResponse(user *store.User, session *store.Session) sessionResponse {
	return sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User: userResponse{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	}
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
