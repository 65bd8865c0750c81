package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// TasksRepository handles task persistence.
type TasksRepository struct {
	q Querier
}

// NewTasksRepository creates a new tasks repository.
func NewTasksRepository(q Querier) *TasksRepository {
	return &TasksRepository{q: q}
}

const taskColumns = `id, workspace_id, title, description, status, created_by, assignee_id, created_at, updated_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID,
		&t.WorkspaceID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.CreatedBy,
		&t.AssigneeID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &t, nil
}

// Create creates a new task.
func (r *TasksRepository) Create(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		t.ID, t.WorkspaceID, t.Title, t.Description, t.Status,
		t.CreatedBy, t.AssigneeID, t.CreatedAt, t.UpdatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a task by ID.
func (r *TasksRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.q.QueryRowContext(ctx, query, id))
}

// ListByWorkspace retrieves the tasks of a workspace, oldest first.
func (r *TasksRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE workspace_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update writes the mutable fields of a task.
func (r *TasksRepository) Update(ctx context.Context, t *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, assignee_id = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := r.q.ExecContext(ctx, query,
		t.Title, t.Description, t.Status, t.AssigneeID, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return translateError(err)
	}
	return checkAffected(result)
}

// Delete deletes a task.
func (r *TasksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return translateError(err)
	}
	return checkAffected(result)
}
