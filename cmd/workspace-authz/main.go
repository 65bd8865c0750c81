package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/workspace-authz/internal/config"
	httpserver "github.com/tendant/workspace-authz/internal/http"
	"github.com/tendant/workspace-authz/internal/notification"
	"github.com/tendant/workspace-authz/internal/telemetry"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/repository"
	"github.com/tendant/workspace-authz/pkg/store"
	"github.com/tendant/workspace-authz/pkg/store/memstore"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry must be set up before the logger so the otelslog bridge
	// finds the global logger provider.
	tel, err := telemetry.Setup(ctx, cfg.OTel, version)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(cfg, os.Stdout)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		shutdownTelemetry(tel, logger)
		os.Exit(1)
	}
	shutdownTelemetry(tel, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := workspace.Deps{
		Store:  st,
		Audit:  audit.NewRecorder(logger),
		Logger: logger,
	}

	// Initialize email service if configured
	var mailer workspace.Mailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(cfg.SMTP)
		logger.Info("email service enabled")
	}

	invitations := workspace.NewInvitationService(deps, workspace.InvitationConfig{
		TTL:       cfg.InvitationTTL,
		AcceptURL: cfg.AcceptURL(),
	}, mailer)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger: logger,
		Verifier: auth.NewIdentity(auth.IdentityConfig{
			JWTSecret: []byte(cfg.JWTSecret),
			Issuer:    cfg.JWTIssuer,
		}),
		Memberships:        workspace.NewMembershipService(deps),
		Invitations:        invitations,
		Signup:             workspace.NewSignupService(deps),
		Tasks:              workspace.NewTaskService(deps),
		Rooms:              workspace.NewRoomService(deps),
		Profiles:           workspace.NewProfileService(deps),
		Audit:              workspace.NewAuditService(deps),
		RateLimitConfig:    cfg.RateLimit,
		SecurityHeaders:    cfg.SecurityHeaders,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	go sweepInvitations(ctx, logger, invitations, cfg.InvitationSweepInterval)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "version", version, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; state is lost on restart")
		return memstore.New(), func() {}, nil
	}

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repository.ValidateSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to database")
	return repository.NewStore(db), func() { db.Close() }, nil
}

// sweepInvitations expires past-due invitations every interval until ctx
// is done.
func sweepInvitations(ctx context.Context, logger *slog.Logger, invitations *workspace.InvitationService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := invitations.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "invitation sweep failed", "error", err)
			}
		}
	}
}

func shutdownTelemetry(tel *telemetry.Telemetry, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
}
