package workspaces

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles workspace and membership endpoints.
type Handler struct {
	logger  *slog.Logger
	members *workspace.MembershipService
}

// NewHandler creates a new workspaces handler.
func NewHandler(logger *slog.Logger, members *workspace.MembershipService) *Handler {
	return &Handler{logger: logger, members: members}
}

// CreateRequest represents a workspace creation request.
type CreateRequest struct {
	Name string `json:"name"`
}

// AddMemberRequest represents a request to add a member directly.
type AddMemberRequest struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role,omitempty"`
}

// List returns the caller's workspaces.
// GET /v1/workspaces
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	list, err := h.members.ListWorkspaces(r.Context(), p)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// Create creates a workspace owned by the caller.
// POST /v1/workspaces
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	ws, err := h.members.CreateWorkspace(r.Context(), p, req.Name)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, ws)
}

// Get returns one workspace.
// GET /v1/workspaces/{workspaceID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	ws, err := h.members.GetWorkspace(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ws)
}

// Delete deletes a workspace.
// DELETE /v1/workspaces/{workspaceID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	if err := h.members.DeleteWorkspace(r.Context(), p, id); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers returns the memberships the caller may see.
// GET /v1/workspaces/{workspaceID}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	list, err := h.members.ListMembers(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// AddMember adds a user to the workspace.
// POST /v1/workspaces/{workspaceID}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	var req AddMemberRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	m, err := h.members.AddMember(r.Context(), p, id, req.UserID, req.Role)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, m)
}

// RemoveMember removes a user from the workspace.
// DELETE /v1/workspaces/{workspaceID}/members/{userID}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	userID, ok := common.UUIDParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.members.RemoveMember(r.Context(), p, id, userID); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
