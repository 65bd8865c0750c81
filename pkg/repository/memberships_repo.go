package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// MembershipsRepository handles membership data persistence.
type MembershipsRepository struct {
	q Querier
}

// NewMembershipsRepository creates a new memberships repository.
func NewMembershipsRepository(q Querier) *MembershipsRepository {
	return &MembershipsRepository{q: q}
}

// Create creates a new membership. The (workspace_id, user_id) primary key
// turns a concurrent duplicate into domain.ErrRaceLost.
func (r *MembershipsRepository) Create(ctx context.Context, membership *domain.Membership) error {
	query := `
		INSERT INTO memberships (workspace_id, user_id, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.q.ExecContext(ctx, query,
		membership.WorkspaceID,
		membership.UserID,
		membership.Role,
		membership.InvitedBy,
		membership.JoinedAt,
	)
	return translateError(err)
}

// Get retrieves the membership of a user in a workspace.
func (r *MembershipsRepository) Get(ctx context.Context, workspaceID, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT workspace_id, user_id, role, invited_by, joined_at
		FROM memberships
		WHERE workspace_id = $1 AND user_id = $2
	`

	var membership domain.Membership
	err := r.q.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&membership.WorkspaceID,
		&membership.UserID,
		&membership.Role,
		&membership.InvitedBy,
		&membership.JoinedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	return &membership, nil
}

// ListByWorkspace retrieves all members of a workspace.
func (r *MembershipsRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error) {
	query := `
		SELECT workspace_id, user_id, role, invited_by, joined_at
		FROM memberships
		WHERE workspace_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*domain.Membership
	for rows.Next() {
		var membership domain.Membership
		err := rows.Scan(
			&membership.WorkspaceID,
			&membership.UserID,
			&membership.Role,
			&membership.InvitedBy,
			&membership.JoinedAt,
		)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, &membership)
	}

	return memberships, rows.Err()
}

// Count returns the number of members of a workspace, owner included.
func (r *MembershipsRepository) Count(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE workspace_id = $1`, workspaceID,
	).Scan(&n)
	return n, err
}

// Delete removes a membership.
func (r *MembershipsRepository) Delete(ctx context.Context, workspaceID, userID uuid.UUID) error {
	result, err := r.q.ExecContext(ctx,
		`DELETE FROM memberships WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	)
	if err != nil {
		return translateError(err)
	}
	return checkAffected(result)
}
