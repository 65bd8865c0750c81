package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/features/common"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/store"
	"github.com/tendant/workspace-authz/pkg/workspace"
)

// Handler handles audit trail endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *workspace.AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(logger *slog.Logger, audit *workspace.AuditService) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// List returns audit records, newest first.
// GET /v1/audit?workspace_id=&entity=&entity_id=&before=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := store.AuditFilter{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
	}
	if v := q.Get("workspace_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid workspace_id")
			return
		}
		filter.WorkspaceID = &id
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid before")
			return
		}
		filter.Before = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	records, err := h.audit.List(r.Context(), p, filter)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, records)
}

// RegisterRoutes registers audit routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/audit", h.List)
}
