package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles business profile and subscription endpoints.
type Handler struct {
	logger   *slog.Logger
	profiles *workspace.ProfileService
}

// NewHandler creates a new settings handler.
func NewHandler(logger *slog.Logger, profiles *workspace.ProfileService) *Handler {
	return &Handler{logger: logger, profiles: profiles}
}

// ProfileRequest represents a business profile write.
type ProfileRequest struct {
	LegalName string `json:"legal_name"`
	Website   string `json:"website"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// SubscriptionRequest represents a plan change.
type SubscriptionRequest struct {
	Plan  domain.Plan `json:"plan"`
	Seats int         `json:"seats"`
}

// GetProfile returns the business profile.
// GET /v1/workspaces/{workspaceID}/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	bp, err := h.profiles.GetProfile(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, bp)
}

// PutProfile replaces the business profile.
// PUT /v1/workspaces/{workspaceID}/profile
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	bp, err := h.profiles.PutProfile(r.Context(), p, id, workspace.ProfileInput(req))
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, bp)
}

// GetSubscription returns the plan and seats.
// GET /v1/workspaces/{workspaceID}/subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	sub, err := h.profiles.GetSubscription(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sub)
}

// PutSubscription changes the plan and seats.
// PUT /v1/workspaces/{workspaceID}/subscription
func (h *Handler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	var req SubscriptionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	sub, err := h.profiles.UpdateSubscription(r.Context(), p, id, req.Plan, req.Seats)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sub)
}

// RegisterRoutes registers settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/workspaces/{workspaceID}/profile", h.GetProfile)
	r.Put("/v1/workspaces/{workspaceID}/profile", h.PutProfile)
	r.Get("/v1/workspaces/{workspaceID}/subscription", h.GetSubscription)
	r.Put("/v1/workspaces/{workspaceID}/subscription", h.PutSubscription)
}
