package workspace

import (
	"context"

	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/store"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditService exposes the read side of the audit trail.
type AuditService struct {
	base
}

// NewAuditService creates a new audit service.
func NewAuditService(d Deps) *AuditService {
	return &AuditService{base: newBase(d)}
}

// List returns audit records matching filter, newest first. Older pages are
// read by passing the oldest returned timestamp as filter.Before. Principals
// without audit access get an empty list.
func (s *AuditService) List(ctx context.Context, p domain.Principal, filter store.AuditFilter) (out []*domain.AuditRecord, err error) {
	ctx, span := startSpan(ctx, "workspace.ListAudit")
	defer endSpan(span, &err)

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}
	return audit.List(ctx, s.store, p, filter)
}
