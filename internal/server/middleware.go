package server

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/store"
)

// Session cookie names. The __Secure- prefix requires HTTPS, so it is only
// used in production.
const (
	sessionCookie       = "keeply.session_token"
	secureSessionCookie = "__Secure-keeply.session_token"
)

// Gate rejection reasons, part of the API contract with the frontend.
const (
	reasonNoCredential     = "NoCredential"
	reasonInvalidOrExpired = "InvalidOrExpired"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keeply",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests served, by method and status class.",
}, []string{"method", "status"})

// sessionCookieName returns the cookie the gate reads for this deployment.
func (s *Server) sessionCookieName() string {
	if s.cfg.IsProduction() {
		return secureSessionCookie
	}
	return sessionCookie
}

// sessionToken extracts the session credential from the request: an
// Authorization bearer token if present, else the session cookie.
func (s *Server) sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return ""
	}
	if c, err := r.Cookie(s.sessionCookieName()); err == nil {
		return c.Value
	}
	return ""
}

// sessionGate authenticates the request against the session store and places
// the resolved user id in the context. It never forwards the raw token.
func (s *Server) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, reasonNoCredential)
			return
		}

		session, err := s.sessions.GetByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, reasonInvalidOrExpired)
				return
			}
			// A store fault is ours, not the client's session.
			s.logger.Error("session lookup failed", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if session.Expired(s.now()) {
			writeError(w, http.StatusUnauthorized, reasonInvalidOrExpired)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), session.UserID)))
	})
}

// requestLogger logs one line per request with method, path, status and
// duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			logging.Status(strconv.Itoa(rec.status)),
			logging.Duration(time.Since(start)),
		)
	})
}

// metricsMiddleware counts served requests by method and status class.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status/100)+"xx").Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// corsMiddleware handles the browser preflight and reflects the configured
// frontend origin. Credentials are allowed because the session rides on a
// cookie; browsers reject Allow-Credentials combined with a literal "*", so
// a wildcard configuration echoes the request origin instead.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := s.cfg.CORSOrigin
		if allowed == "*" {
			allowed = r.Header.Get("Origin")
		}

		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// visitor tracks one client IP's rate limiter.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket. Stale entries are evicted
// lazily on each pass so no background goroutine is needed.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func newRateLimiter(rps rate.Limit, burst int) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rps,
		burst:    burst,
		ttl:      3 * time.Minute,
		now:      time.Now,
	}
}

func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// middleware returns the HTTP wrapper rejecting over-limit clients with 429.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, preferring proxy headers over
// RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
