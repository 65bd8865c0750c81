package invitations

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles invitation endpoints.
type Handler struct {
	logger      *slog.Logger
	invitations *workspace.InvitationService
}

// NewHandler creates a new invitations handler.
func NewHandler(logger *slog.Logger, invitations *workspace.InvitationService) *Handler {
	return &Handler{logger: logger, invitations: invitations}
}

// CreateRequest represents an invitation request.
type CreateRequest struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
}

// CreateResponse carries the raw token. It is only ever returned here.
type CreateResponse struct {
	ID          uuid.UUID   `json:"id"`
	WorkspaceID uuid.UUID   `json:"workspace_id"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// AcceptRequest represents an invitation redemption.
type AcceptRequest struct {
	Token string `json:"token"`
}

// Create invites an email address to the workspace.
// POST /v1/workspaces/{workspaceID}/invitations
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	inv, token, err := h.invitations.CreateInvitation(r.Context(), p, id, req.Email, req.Role)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, CreateResponse{
		ID:          inv.ID,
		WorkspaceID: inv.WorkspaceID,
		Email:       inv.Email,
		Role:        inv.Role,
		Token:       token,
		ExpiresAt:   inv.ExpiresAt,
	})
}

// List returns the workspace's invitations.
// GET /v1/workspaces/{workspaceID}/invitations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	list, err := h.invitations.ListInvitations(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// Revoke withdraws a pending invitation.
// DELETE /v1/workspaces/{workspaceID}/invitations/{invitationID}
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	invitationID, ok := common.UUIDParam(w, r, "invitationID")
	if !ok {
		return
	}
	if err := h.invitations.RevokeInvitation(r.Context(), p, id, invitationID); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept redeems an invitation token for the caller.
// POST /v1/invitations/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	var req AcceptRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	res, err := h.invitations.AcceptInvitation(r.Context(), p, req.Token)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}
