// Package common holds request helpers shared by the feature handlers.
package common

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/internal/http/middleware"
	"github.com/tendant/workspace-authz/internal/httputil"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// Principal returns the authenticated caller or writes a 401.
func Principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return domain.Principal{}, false
	}
	return p, true
}

// UUIDParam parses a chi URL parameter or writes a 400.
func UUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// WorkspaceID parses the {workspaceID} URL parameter.
func WorkspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return UUIDParam(w, r, "workspaceID")
}
