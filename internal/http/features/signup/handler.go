package signup

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles signup provisioning.
type Handler struct {
	logger *slog.Logger
	signup *workspace.SignupService
}

// NewHandler creates a new signup handler.
func NewHandler(logger *slog.Logger, signup *workspace.SignupService) *Handler {
	return &Handler{logger: logger, signup: signup}
}

// Provision creates the caller's local records after identity-provider
// signup. Repeat calls return the existing user.
// POST /v1/signup
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	res, err := h.signup.Provision(r.Context(), p)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, res)
}

// RegisterRoutes registers signup routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/signup", h.Provision)
}
