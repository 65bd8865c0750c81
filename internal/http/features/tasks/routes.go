package tasks

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers task routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/workspaces/{workspaceID}/tasks", h.List)
	r.Post("/v1/workspaces/{workspaceID}/tasks", h.Create)
	r.Get("/v1/workspaces/{workspaceID}/tasks/{taskID}", h.Get)
	r.Patch("/v1/workspaces/{workspaceID}/tasks/{taskID}", h.Update)
	r.Delete("/v1/workspaces/{workspaceID}/tasks/{taskID}", h.Delete)
}
