package invitations

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/workspace-authz/internal/http/middleware"
)

// RegisterRoutes registers invitation routes. limit guards the endpoints
// that send mail or test tokens. Inviters must have a verified email;
// accept checks verification itself so a mismatched email is reported first.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.With(limit, middleware.RequireVerified()).Post("/v1/workspaces/{workspaceID}/invitations", h.Create)
	r.Get("/v1/workspaces/{workspaceID}/invitations", h.List)
	r.Delete("/v1/workspaces/{workspaceID}/invitations/{invitationID}", h.Revoke)
	r.With(limit).Post("/v1/invitations/accept", h.Accept)
}
