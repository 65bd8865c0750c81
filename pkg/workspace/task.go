package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

const maxTaskTitleLen = 200

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	AssigneeID  *uuid.UUID
}

// TaskPatch carries optional task changes. ClearAssignee unassigns the task.
type TaskPatch struct {
	Title         *string
	Description   *string
	Status        *domain.TaskStatus
	AssigneeID    *uuid.UUID
	ClearAssignee bool
}

// TaskService manages workspace tasks.
type TaskService struct {
	base
}

// NewTaskService creates a new task service.
func NewTaskService(d Deps) *TaskService {
	return &TaskService{base: newBase(d)}
}

func taskResource(t *domain.Task) *policy.Resource {
	return &policy.Resource{WorkspaceID: t.WorkspaceID, CreatedBy: t.CreatedBy, AssigneeID: t.AssigneeID}
}

func taskEntry(op domain.AuditOp, actor uuid.UUID, before, after *domain.Task) audit.Entry {
	e := audit.Entry{Entity: domain.EntityTask, Op: op, ActorID: actor}
	t := after
	if t == nil {
		t = before
	}
	e.EntityID = t.ID.String()
	e.WorkspaceID = ptr(t.WorkspaceID)
	if before != nil {
		e.Before = before
	}
	if after != nil {
		e.After = after
	}
	return e
}

// ListTasks returns the tasks of a workspace, or an empty list when the
// principal cannot see it.
func (s *TaskService) ListTasks(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (out []*domain.Task, err error) {
	ctx, span := startSpan(ctx, "workspace.ListTasks", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindResource, policy.OpRead, nil); err != nil {
		if listDenied(err) {
			return []*domain.Task{}, nil
		}
		return nil, err
	}
	out, err = s.store.Tasks().ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.Task{}
	}
	return out, nil
}

// GetTask returns a task. A task the principal cannot see is reported as
// domain.ErrNotFound.
func (s *TaskService) GetTask(ctx context.Context, p domain.Principal, workspaceID, taskID uuid.UUID) (t *domain.Task, err error) {
	ctx, span := startSpan(ctx, "workspace.GetTask", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	t, err = s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindResource, policy.OpRead, taskResource(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask creates a task in a workspace the principal belongs to.
func (s *TaskService) CreateTask(ctx context.Context, p domain.Principal, workspaceID uuid.UUID, in TaskInput) (t *domain.Task, err error) {
	ctx, span := startSpan(ctx, "workspace.CreateTask", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	title := auth.CleanText(in.Title)
	if err := auth.ValidateLength("title", title, 1, maxTaskTitleLen); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.TaskStatusTodo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindResource, policy.OpCreate, nil); err != nil {
			return err
		}
		if err := requireMember(ctx, tx, workspaceID, in.AssigneeID); err != nil {
			return err
		}

		now := s.now()
		t = &domain.Task{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			Title:       title,
			Description: in.Description,
			Status:      status,
			CreatedBy:   p.UserID,
			AssigneeID:  in.AssigneeID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Tasks().Create(ctx, t); err != nil {
			return err
		}
		return s.record(ctx, tx, taskEntry(domain.AuditOpInsert, p.UserID, nil, t))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask applies patch. Only the creator, the assignee or the workspace
// owner may update a task.
func (s *TaskService) UpdateTask(ctx context.Context, p domain.Principal, workspaceID, taskID uuid.UUID, patch TaskPatch) (t *domain.Task, err error) {
	ctx, span := startSpan(ctx, "workspace.UpdateTask", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		before, err := s.loadForWrite(ctx, tx, p, workspaceID, taskID, policy.OpUpdate)
		if err != nil {
			return err
		}

		after := *before
		if patch.Title != nil {
			after.Title = auth.CleanText(*patch.Title)
			if err := auth.ValidateLength("title", after.Title, 1, maxTaskTitleLen); err != nil {
				return err
			}
		}
		if patch.Description != nil {
			after.Description = *patch.Description
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *patch.Status)
			}
			after.Status = *patch.Status
		}
		switch {
		case patch.ClearAssignee:
			after.AssigneeID = nil
		case patch.AssigneeID != nil:
			if err := requireMember(ctx, tx, workspaceID, patch.AssigneeID); err != nil {
				return err
			}
			after.AssigneeID = patch.AssigneeID
		}
		after.UpdatedAt = s.now()

		if err := tx.Tasks().Update(ctx, &after); err != nil {
			return err
		}
		t = &after
		return s.record(ctx, tx, taskEntry(domain.AuditOpUpdate, p.UserID, before, &after))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTask deletes a task. Only the creator, the assignee or the workspace
// owner may delete it.
func (s *TaskService) DeleteTask(ctx context.Context, p domain.Principal, workspaceID, taskID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "workspace.DeleteTask", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	return s.store.WithTx(ctx, func(tx store.Stores) error {
		before, err := s.loadForWrite(ctx, tx, p, workspaceID, taskID, policy.OpDelete)
		if err != nil {
			return err
		}
		if err := tx.Tasks().Delete(ctx, taskID); err != nil {
			return err
		}
		return s.record(ctx, tx, taskEntry(domain.AuditOpDelete, p.UserID, before, nil))
	})
}

// loadForWrite reads a task and checks op on it. A task outside the
// workspace is not found.
func (s *TaskService) loadForWrite(ctx context.Context, tx store.Stores, p domain.Principal, workspaceID, taskID uuid.UUID, op policy.Op) (*domain.Task, error) {
	t, err := tx.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindResource, op, taskResource(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// requireMember checks that userID, when set, belongs to the workspace.
func requireMember(ctx context.Context, tx store.Stores, workspaceID uuid.UUID, userID *uuid.UUID) error {
	if userID == nil {
		return nil
	}
	if _, err := tx.Memberships().Get(ctx, workspaceID, *userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: assignee is not a member of this workspace", domain.ErrInvalidInput)
		}
		return err
	}
	return nil
}
