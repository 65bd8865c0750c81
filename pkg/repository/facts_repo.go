package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
)

// FactsRepository reads policy facts straight from the workspaces and
// memberships tables. It must never call a policy predicate.
type FactsRepository struct {
	q Querier
}

// NewFactsRepository creates a new facts repository.
func NewFactsRepository(q Querier) *FactsRepository {
	return &FactsRepository{q: q}
}

// WorkspaceFacts returns the owner of the workspace and the user's role in it.
func (r *FactsRepository) WorkspaceFacts(ctx context.Context, workspaceID, userID uuid.UUID) (policy.Facts, error) {
	query := `
		SELECT w.owner_id, m.role
		FROM workspaces w
		LEFT JOIN memberships m ON m.workspace_id = w.id AND m.user_id = $2
		WHERE w.id = $1
	`

	f := policy.Facts{WorkspaceID: workspaceID, UserID: userID}
	var role sql.NullString
	err := r.q.QueryRowContext(ctx, query, workspaceID, userID).Scan(&f.OwnerID, &role)
	if err != nil {
		return policy.Facts{}, translateError(err)
	}
	if role.Valid {
		f.Role = domain.Role(role.String)
	}
	return f, nil
}

// OwnsAnyWorkspace reports whether the user owns at least one workspace.
func (r *FactsRepository) OwnsAnyWorkspace(ctx context.Context, userID uuid.UUID) (bool, error) {
	var owns bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workspaces WHERE owner_id = $1)`, userID,
	).Scan(&owns)
	return owns, err
}
