package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// WorkspacesRepository handles workspace data persistence.
type WorkspacesRepository struct {
	q Querier
}

// NewWorkspacesRepository creates a new workspaces repository.
func NewWorkspacesRepository(q Querier) *WorkspacesRepository {
	return &WorkspacesRepository{q: q}
}

const workspaceColumns = `id, name, owner_id, plan, seats, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*domain.Workspace, error) {
	var w domain.Workspace
	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.OwnerID,
		&w.Plan,
		&w.Seats,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &w, nil
}

// Create creates a new workspace.
func (r *WorkspacesRepository) Create(ctx context.Context, w *domain.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, owner_id, plan, seats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		w.ID,
		w.Name,
		w.OwnerID,
		w.Plan,
		w.Seats,
		w.CreatedAt,
		w.UpdatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a workspace by ID.
func (r *WorkspacesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	return scanWorkspace(r.q.QueryRowContext(ctx, query, id))
}

// ListForUser retrieves the workspaces a user owns or belongs to.
func (r *WorkspacesRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error) {
	query := `
		SELECT ` + workspaceColumns + `
		FROM workspaces w
		WHERE w.owner_id = $1
			OR EXISTS (SELECT 1 FROM memberships m WHERE m.workspace_id = w.id AND m.user_id = $1)
		ORDER BY w.created_at ASC, w.id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []*domain.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}

	return workspaces, rows.Err()
}

// UpdateSubscription updates the plan and seat columns of a workspace.
func (r *WorkspacesRepository) UpdateSubscription(ctx context.Context, s domain.Subscription) error {
	query := `
		UPDATE workspaces
		SET plan = $1, seats = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.q.ExecContext(ctx, query, s.Plan, s.Seats, s.WorkspaceID)
	if err != nil {
		return translateError(err)
	}
	return checkAffected(result)
}

// Delete deletes a workspace. Memberships, invitations, tasks, rooms and the
// business profile go with it through ON DELETE CASCADE.
func (r *WorkspacesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return translateError(err)
	}
	return checkAffected(result)
}
