package rooms

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles direct room endpoints.
type Handler struct {
	logger *slog.Logger
	rooms  *workspace.RoomService
}

// NewHandler creates a new rooms handler.
func NewHandler(logger *slog.Logger, rooms *workspace.RoomService) *Handler {
	return &Handler{logger: logger, rooms: rooms}
}

// DirectRequest names the other member of a direct room.
type DirectRequest struct {
	PeerID uuid.UUID `json:"peer_id"`
}

// Direct returns the caller's direct room with a peer, creating it if needed.
// POST /v1/workspaces/{workspaceID}/rooms/direct
func (h *Handler) Direct(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.WorkspaceID(w, r)
	if !ok {
		return
	}
	var req DirectRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	room, created, err := h.rooms.GetOrCreateDirectRoom(r.Context(), p, id, req.PeerID)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, room)
}

// RegisterRoutes registers room routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/workspaces/{workspaceID}/rooms/direct", h.Direct)
}
