package tasks

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles task endpoints.
type Handler struct {
	logger *slog.Logger
	tasks  *workspace.TaskService
}

// NewHandler creates a new tasks handler.
func NewHandler(logger *slog.Logger, tasks *workspace.TaskService) *Handler {
	return &Handler{logger: logger, tasks: tasks}
}

// CreateRequest represents a task creation request.
type CreateRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      domain.TaskStatus `json:"status,omitempty"`
	AssigneeID  *uuid.UUID        `json:"assignee_id,omitempty"`
}

// UpdateRequest represents a partial task update. Set clear_assignee to
// unassign.
type UpdateRequest struct {
	Title         *string            `json:"title,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Status        *domain.TaskStatus `json:"status,omitempty"`
	AssigneeID    *uuid.UUID         `json:"assignee_id,omitempty"`
	ClearAssignee bool               `json:"clear_assignee,omitempty"`
}

// List returns the workspace's tasks.
// GET /v1/workspaces/{workspaceID}/tasks
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	list, err := h.tasks.ListTasks(r.Context(), p, id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// Create creates a task.
// POST /v1/workspaces/{workspaceID}/tasks
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
	t, err := h.tasks.CreateTask(r.Context(), p, id, workspace.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, t)
}

// Get returns one task.
// GET /v1/workspaces/{workspaceID}/tasks/{taskID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, id, taskID, ok := h.params(w, r)
	if !ok {
		return
	}
	t, err := h.tasks.GetTask(r.Context(), p, id, taskID)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

// Update applies a partial update.
// PATCH /v1/workspaces/{workspaceID}/tasks/{taskID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, id, taskID, ok := h.params(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.tasks.UpdateTask(r.Context(), p, id, taskID, workspace.TaskPatch{
		Title:         req.Title,
		Description:   req.Description,
		Status:        req.Status,
		AssigneeID:    req.AssigneeID,
		ClearAssignee: req.ClearAssignee,
	})
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

// Delete deletes a task.
// DELETE /v1/workspaces/{workspaceID}/tasks/{taskID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, id, taskID, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(r.Context(), p, id, taskID); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (domain.Principal, uuid.UUID, uuid.UUID, bool) {
	p, ok := common.Principal(w, r)
	if !ok {
		return p, uuid.Nil, uuid.Nil, false
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return p, uuid.Nil, uuid.Nil, false
	}
	taskID, ok := common.UUIDParam(w, r, "taskID")
	return p, id, taskID, ok
}
