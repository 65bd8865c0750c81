// Package authz embeds the workspace authorization service in another
// program: workspaces, memberships, invitations and the resources scoped to
// them, all checked against the caller's principal.
//
// Setup:
//
//  1. Run migrations from migrations/ folder using your preferred tool
//  2. Create an Authz instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	az, err := authz.New(authz.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	    AcceptURL: "https://app.example.com/invitations/accept",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/api", az.Router())
//	http.ListenAndServe(":8080", r)
//
// Without DB the instance keeps its state in memory, which suits tests and
// local development.
package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tendant/workspace-authz/internal/config"
	apihttp "github.com/tendant/workspace-authz/internal/http"
	"github.com/tendant/workspace-authz/internal/http/middleware"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/repository"
	"github.com/tendant/workspace-authz/pkg/store"
	"github.com/tendant/workspace-authz/pkg/store/memstore"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Config holds the configuration for an embedded instance.
type Config struct {
	// DB is the Postgres connection. When nil, state lives in memory.
	DB *sql.DB

	// JWTSecret verifies identity provider access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is checked against the token issuer when set.
	JWTIssuer string

	// InvitationTTL is how long invitation tokens stay redeemable (default: 7 days).
	InvitationTTL time.Duration

	// AcceptURL is the page invitation emails link to.
	AcceptURL string

	// Mailer sends invitation emails (optional).
	Mailer workspace.Mailer

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// Services groups the domain services for direct use without HTTP.
type Services struct {
	Memberships *workspace.MembershipService
	Invitations *workspace.InvitationService
	Signup      *workspace.SignupService
	Tasks       *workspace.TaskService
	Rooms       *workspace.RoomService
	Profiles    *workspace.ProfileService
	Audit       *workspace.AuditService
}

// Authz is an embedded authorization service instance.
type Authz struct {
	config   Config
	store    store.Store
	identity *auth.Identity
	services Services
}

// New creates an instance with the given configuration. With a DB it
// returns an error if the required tables don't exist.
func New(cfg Config) (*Authz, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	var st store.Store
	if cfg.DB != nil {
		if err := repository.ValidateSchema(context.Background(), cfg.DB); err != nil {
			return nil, fmt.Errorf("authz: %w", err)
		}
		st = repository.NewStore(cfg.DB)
	} else {
		st = memstore.New()
	}

	deps := workspace.Deps{
		Store:  st,
		Audit:  audit.NewRecorder(cfg.Logger),
		Logger: cfg.Logger,
	}

	return &Authz{
		config: cfg,
		store:  st,
		identity: auth.NewIdentity(auth.IdentityConfig{
			JWTSecret: []byte(cfg.JWTSecret),
			Issuer:    cfg.JWTIssuer,
		}),
		services: Services{
			Memberships: workspace.NewMembershipService(deps),
			Invitations: workspace.NewInvitationService(deps, workspace.InvitationConfig{
				TTL:       cfg.InvitationTTL,
				AcceptURL: cfg.AcceptURL,
			}, cfg.Mailer),
			Signup:   workspace.NewSignupService(deps),
			Tasks:    workspace.NewTaskService(deps),
			Rooms:    workspace.NewRoomService(deps),
			Profiles: workspace.NewProfileService(deps),
			Audit:    workspace.NewAuditService(deps),
		},
	}, nil
}

// Router returns a handler serving every /v1 route plus /health.
// Rate limiting is left to the host program.
func (a *Authz) Router() http.Handler {
	return apihttp.NewRouter(apihttp.RouterConfig{
		Logger:      a.config.Logger,
		Verifier:    a.identity,
		Memberships: a.services.Memberships,
		Invitations: a.services.Invitations,
		Signup:      a.services.Signup,
		Tasks:       a.services.Tasks,
		Rooms:       a.services.Rooms,
		Profiles:    a.services.Profiles,
		Audit:       a.services.Audit,
		SecurityHeaders: config.SecurityHeadersConfig{
			Enabled:            true,
			ContentTypeOptions: "nosniff",
			FrameOptions:       "DENY",
		},
	})
}

// Routes registers all routes on an http.ServeMux with the given prefix:
//
//	mux := http.NewServeMux()
//	az.Routes(mux, "/api")
func (a *Authz) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, a.Router()))
}

// Services returns the domain services.
func (a *Authz) Services() Services {
	return a.services
}

// AuthMiddleware returns middleware that validates bearer tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(az.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (a *Authz) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(a.identity)
}

// IssueToken signs an access token for p. Meant for tests and local
// development; production tokens come from the identity provider.
func (a *Authz) IssueToken(p domain.Principal) (string, error) {
	return a.identity.Issue(p)
}

// GetPrincipal extracts the caller from a request.
// Use after AuthMiddleware:
//
//	p, ok := authz.GetPrincipal(r)
func GetPrincipal(r *http.Request) (domain.Principal, bool) {
	return middleware.GetPrincipal(r.Context())
}

// ExpireStale marks pending invitations past their expiry as expired.
// Host programs call it periodically.
func (a *Authz) ExpireStale(ctx context.Context) (int, error) {
	return a.services.Invitations.ExpireStale(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("authz: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("authz: JWTSecret must be at least 32 characters")
	}
	if cfg.InvitationTTL < 0 {
		return errors.New("authz: InvitationTTL must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.InvitationTTL == 0 {
		cfg.InvitationTTL = workspace.DefaultInvitationTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
