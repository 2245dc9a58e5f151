package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/keeply-app/keeply-server/internal/auth"
	"github.com/keeply-app/keeply-server/internal/config"
	"github.com/keeply-app/keeply-server/internal/integration"
	"github.com/keeply-app/keeply-server/internal/logging"
	"github.com/keeply-app/keeply-server/internal/oauthflow"
	"github.com/keeply-app/keeply-server/internal/server"
	"github.com/keeply-app/keeply-server/internal/store"
	"github.com/keeply-app/keeply-server/internal/tracing"
)

// sessionCleanupInterval is how often expired sessions are purged.
const sessionCleanupInterval = time.Hour

func newServeCmd() *cobra.Command {
	var (
		port        int
		host        string
		logLevel    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the keeply HTTP server",
		Long: `Run the keeply HTTP server.

Configuration is read from the environment; flags override individual
values. A PostgreSQL database is required; the schema is migrated at
startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 3333, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", logging.Err(err))
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("database ready")

	if !cfg.HasGoogleCredentials() {
		logger.Warn("google client credentials not configured, gmail and calendar integrations disabled")
	}
	if !cfg.HasMicrosoftCredentials() {
		logger.Warn("microsoft client credentials not configured, outlook integration disabled")
	}

	users := store.NewUserRepository(pool)
	sessions := store.NewSessionRepository(pool)
	integrations := store.NewIntegrationRepository(pool)

	authService := auth.NewService(users, sessions, logger)

	srv := server.New(cfg, logger, server.Deps{
		Auth:         authService,
		Sessions:     sessions,
		Integrations: integrations,
		Manager:      integration.NewManager(integrations, cfg, logger),
		Flow:         oauthflow.NewFlow(integrations, cfg, logger),
		DB:           pool,
	})

	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	go cleanupSessions(ctx, authService, logger)

	err = srv.Start(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if merr := metricsServer.Shutdown(shutdownCtx); merr != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(merr))
		}
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// cleanupSessions periodically removes expired sessions until ctx ends.
func cleanupSessions(ctx context.Context, svc *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("session cleanup failed", logging.Err(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}
