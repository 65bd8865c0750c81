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

const maxWorkspaceNameLen = 100

// MembershipService manages workspaces and their memberships.
type MembershipService struct {
	base
}

// NewMembershipService creates a new membership service.
func NewMembershipService(d Deps) *MembershipService {
	return &MembershipService{base: newBase(d)}
}

// CreateWorkspace creates a workspace owned by the principal together with
// the owner's membership and the initial subscription.
func (s *MembershipService) CreateWorkspace(ctx context.Context, p domain.Principal, name string) (w *domain.Workspace, err error) {
	ctx, span := startSpan(ctx, "workspace.CreateWorkspace")
	defer endSpan(span, &err)

	name = auth.CleanText(name)
	if err := auth.ValidateLength("name", name, 1, maxWorkspaceNameLen); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		var err error
		w, err = s.createWorkspaceTx(ctx, tx, p.UserID, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workspace created", "workspace_id", w.ID, "owner_id", w.OwnerID)
	return w, nil
}

// createWorkspaceTx inserts the workspace, the owner membership and the
// subscription, auditing each.
func (b *base) createWorkspaceTx(ctx context.Context, tx store.Stores, ownerID uuid.UUID, name string) (*domain.Workspace, error) {
	now := b.now()
	w := &domain.Workspace{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   ownerID,
		Plan:      domain.PlanFree,
		Seats:     domain.DefaultSeats,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Workspaces().Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if err := b.record(ctx, tx, audit.Entry{
		Entity:      domain.EntityWorkspace,
		EntityID:    w.ID.String(),
		WorkspaceID: &w.ID,
		Op:          domain.AuditOpInsert,
		ActorID:     ownerID,
		After:       w,
	}); err != nil {
		return nil, err
	}

	m := &domain.Membership{
		WorkspaceID: w.ID,
		UserID:      ownerID,
		Role:        domain.RoleOwner,
		JoinedAt:    now,
	}
	if err := tx.Memberships().Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create owner membership: %w", err)
	}
	if err := b.record(ctx, tx, membershipEntry(domain.AuditOpInsert, ownerID, nil, m)); err != nil {
		return nil, err
	}

	sub := w.Subscription()
	if err := b.record(ctx, tx, audit.Entry{
		Entity:      domain.EntitySubscription,
		EntityID:    w.ID.String(),
		WorkspaceID: &w.ID,
		Op:          domain.AuditOpInsert,
		ActorID:     ownerID,
		After:       sub,
	}); err != nil {
		return nil, err
	}
	return w, nil
}

func membershipEntry(op domain.AuditOp, actor uuid.UUID, before, after *domain.Membership) audit.Entry {
	e := audit.Entry{Entity: domain.EntityMembership, Op: op, ActorID: actor}
	m := after
	if m == nil {
		m = before
	}
	e.EntityID = m.WorkspaceID.String() + ":" + m.UserID.String()
	e.WorkspaceID = ptr(m.WorkspaceID)
	if before != nil {
		e.Before = before
	}
	if after != nil {
		e.After = after
	}
	return e
}

// GetWorkspace returns a workspace the principal can see.
func (s *MembershipService) GetWorkspace(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (w *domain.Workspace, err error) {
	ctx, span := startSpan(ctx, "workspace.GetWorkspace", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindWorkspace, policy.OpRead, nil); err != nil {
		return nil, err
	}
	return s.store.Workspaces().GetByID(ctx, workspaceID)
}

// ListWorkspaces returns the workspaces the principal owns or belongs to.
func (s *MembershipService) ListWorkspaces(ctx context.Context, p domain.Principal) (ws []*domain.Workspace, err error) {
	ctx, span := startSpan(ctx, "workspace.ListWorkspaces")
	defer endSpan(span, &err)

	ws, err = s.store.Workspaces().ListForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		ws = []*domain.Workspace{}
	}
	return ws, nil
}

// DeleteWorkspace deletes a workspace and everything in it. Owner only.
func (s *MembershipService) DeleteWorkspace(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "workspace.DeleteWorkspace", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindWorkspace, policy.OpDelete, nil); err != nil {
			return err
		}
		w, err := tx.Workspaces().GetByID(ctx, workspaceID)
		if err != nil {
			return err
		}
		members, err := tx.Memberships().ListByWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}

		if err := tx.Workspaces().Delete(ctx, workspaceID); err != nil {
			return err
		}

		for _, m := range members {
			if err := s.record(ctx, tx, membershipEntry(domain.AuditOpDelete, p.UserID, m, nil)); err != nil {
				return err
			}
		}
		return s.record(ctx, tx, audit.Entry{
			Entity:      domain.EntityWorkspace,
			EntityID:    w.ID.String(),
			WorkspaceID: &w.ID,
			Op:          domain.AuditOpDelete,
			ActorID:     p.UserID,
			Before:      w,
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "workspace deleted", "workspace_id", workspaceID, "actor_id", p.UserID)
	return nil
}

// AddMember adds a user to a workspace. Only the owner may add members and
// only the member role can be granted.
func (s *MembershipService) AddMember(ctx context.Context, p domain.Principal, workspaceID, userID uuid.UUID, role domain.Role) (m *domain.Membership, err error) {
	ctx, span := startSpan(ctx, "workspace.AddMember", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleMember {
		return nil, domain.ErrInvalidRole
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindMembership, policy.OpCreate, nil); err != nil {
			return err
		}
		if _, err := tx.Memberships().Get(ctx, workspaceID, userID); err == nil {
			return domain.ErrDuplicateMembership
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := checkSeats(ctx, tx, p, workspaceID); err != nil {
			return err
		}

		m = &domain.Membership{
			WorkspaceID: workspaceID,
			UserID:      userID,
			Role:        role,
			InvitedBy:   ptr(p.UserID),
			JoinedAt:    s.now(),
		}
		if err := tx.Memberships().Create(ctx, m); err != nil {
			if errors.Is(err, domain.ErrRaceLost) {
				return domain.ErrDuplicateMembership
			}
			return err
		}
		return s.record(ctx, tx, membershipEntry(domain.AuditOpInsert, p.UserID, nil, m))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember removes a user from a workspace. The owner may remove anyone
// but themselves; a member may remove only themselves.
func (s *MembershipService) RemoveMember(ctx context.Context, p domain.Principal, workspaceID, userID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "workspace.RemoveMember", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	return s.store.WithTx(ctx, func(tx store.Stores) error {
		f, err := evaluator(tx).Facts(ctx, workspaceID, p.UserID)
		if err != nil {
			return err
		}
		if !policy.CanSeeWorkspace(f) {
			return domain.ErrUnauthorized
		}
		if userID == f.OwnerID {
			return domain.ErrCannotRemoveOwner
		}
		if userID != p.UserID && !policy.CanManageWorkspace(f) {
			return domain.ErrUnauthorized
		}

		m, err := tx.Memberships().Get(ctx, workspaceID, userID)
		if err != nil {
			return err
		}
		if err := tx.Memberships().Delete(ctx, workspaceID, userID); err != nil {
			return err
		}
		return s.record(ctx, tx, membershipEntry(domain.AuditOpDelete, p.UserID, m, nil))
	})
}

// ListMembers returns the memberships of a workspace the principal may see:
// all of them for the owner, only their own row for a member and none for
// anyone else.
func (s *MembershipService) ListMembers(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (out []*domain.Membership, err error) {
	ctx, span := startSpan(ctx, "workspace.ListMembers", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	out = []*domain.Membership{}
	f, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindMembership, policy.OpRead, nil)
	if err != nil {
		if listDenied(err) {
			return out, nil
		}
		return nil, err
	}

	members, err := s.store.Memberships().ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if policy.CanSeeMembership(f, m) {
			out = append(out, m)
		}
	}
	return out, nil
}
