package workspaces

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers workspace and membership routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/workspaces", h.List)
	r.Post("/v1/workspaces", h.Create)
	r.Get("/v1/workspaces/{workspaceID}", h.Get)
	r.Delete("/v1/workspaces/{workspaceID}", h.Delete)
	r.Get("/v1/workspaces/{workspaceID}/members", h.ListMembers)
	r.Post("/v1/workspaces/{workspaceID}/members", h.AddMember)
	r.Delete("/v1/workspaces/{workspaceID}/members/{userID}", h.RemoveMember)
}
