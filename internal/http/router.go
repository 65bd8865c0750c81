package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/workspace-authz/internal/config"
	"github.com/tendant/workspace-authz/internal/http/features/audit"
	"github.com/tendant/workspace-authz/internal/http/features/invitations"
	"github.com/tendant/workspace-authz/internal/http/features/rooms"
	"github.com/tendant/workspace-authz/internal/http/features/settings"
	"github.com/tendant/workspace-authz/internal/http/features/signup"
	"github.com/tendant/workspace-authz/internal/http/features/tasks"
	"github.com/tendant/workspace-authz/internal/http/features/workspaces"
	"github.com/tendant/workspace-authz/internal/http/middleware"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger   *slog.Logger
	Verifier middleware.TokenVerifier

	Memberships *workspace.MembershipService
	Invitations *workspace.InvitationService
	Signup      *workspace.SignupService
	Tasks       *workspace.TaskService
	Rooms       *workspace.RoomService
	Profiles    *workspace.ProfileService
	Audit       *workspace.AuditService

	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Trace())
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		r.Use(rateLimiters.API)

		signup.NewHandler(cfg.Logger, cfg.Signup).RegisterRoutes(r)
		workspaces.NewHandler(cfg.Logger, cfg.Memberships).RegisterRoutes(r)
		invitations.NewHandler(cfg.Logger, cfg.Invitations).RegisterRoutes(r, rateLimiters.Invite)
		tasks.NewHandler(cfg.Logger, cfg.Tasks).RegisterRoutes(r)
		rooms.NewHandler(cfg.Logger, cfg.Rooms).RegisterRoutes(r)
		settings.NewHandler(cfg.Logger, cfg.Profiles).RegisterRoutes(r)
		audit.NewHandler(cfg.Logger, cfg.Audit).RegisterRoutes(r)
	})

	return r
}
