package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keeply-app/keeply-server/internal/auth"
	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/integration"
	"github.com/keeply-app/keeply-server/internal/oauthflow"
	"github.com/keeply-app/keeply-server/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the HTTP listeners.
	ShutdownTimeout = 30 * time.Second

	// Rate limit applied to the integrations routes. The OAuth flow is
	// user-driven; anything beyond this is a misbehaving client.
	oauthRateLimit = 10
	oauthRateBurst = 20
)

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	Auth         *auth.Service
	Sessions     store.SessionStore
	Integrations store.IntegrationStore
	Manager      *integration.Manager
	Flow         *oauthflow.Flow

	// DB is pinged by the readiness probe. May be nil when the server runs
	// without a database (tests).
	DB Pinger
}

// Pinger is the health check's view of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is keeply's HTTP API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	auth         *auth.Service
	sessions     store.SessionStore
	integrations store.IntegrationStore
	manager      *integration.Manager
	flow         *oauthflow.Flow

	health     *HealthChecker
	httpServer *http.Server
	now        func() time.Time
}

// New creates the server and builds its router.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		auth:         deps.Auth,
		sessions:     deps.Sessions,
		integrations: deps.Integrations,
		manager:      deps.Manager,
		flow:         deps.Flow,
		health:       NewHealthChecker(deps.DB),
		now:          time.Now,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           otelhttp.NewHandler(s.Router(), "keeply-server"),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.health.LivenessHandler())
	r.Get("/readyz", s.health.ReadinessHandler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	// Everything below requires a session.
	r.Group(func(r chi.Router) {
		r.Use(s.sessionGate)

		r.Route("/integrations", func(r chi.Router) {
			limiter := newRateLimiter(oauthRateLimit, oauthRateBurst)
			r.Use(limiter.middleware)

			r.Get("/status", s.handleIntegrationStatus)
			r.Get("/{provider}/auth-url", s.handleAuthURL)
			r.Post("/{provider}/callback", s.handleCallback)
			r.Get("/{provider}/tokens", s.handleTokens)
			r.Post("/{provider}/refresh", s.handleRefresh)
		})

		r.Get("/google/gmail/messages", s.handleGmailMessages)
		r.Get("/google/calendar/events", s.handleCalendarEvents)
		r.Get("/outlook/messages", s.handleOutlookMessages)
		r.Get("/outlook/calendar/events/list", s.handleOutlookEvents)
	})

	return r
}

// Start runs the HTTP listener until the context is canceled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
