// Package store declares the persistence interfaces the workspace services
// depend on. Implementations enforce every uniqueness rule themselves and
// report a violation as domain.ErrRaceLost.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
)

// WorkspaceStore persists workspaces and their subscription columns.
type WorkspaceStore interface {
	Create(ctx context.Context, w *domain.Workspace) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)
	// ListForUser returns workspaces the user owns or is a member of.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error)
	UpdateSubscription(ctx context.Context, s domain.Subscription) error
	// Delete removes the workspace and everything scoped to it.
	Delete(ctx context.Context, id uuid.UUID) error
}

// MembershipStore persists memberships. Create returns domain.ErrRaceLost when
// the (workspace, user) pair already exists.
type MembershipStore interface {
	Create(ctx context.Context, m *domain.Membership) error
	Get(ctx context.Context, workspaceID, userID uuid.UUID) (*domain.Membership, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error)
	Count(ctx context.Context, workspaceID uuid.UUID) (int, error)
	Delete(ctx context.Context, workspaceID, userID uuid.UUID) error
}

// InvitationStore persists invitations. Create returns domain.ErrRaceLost
// when a pending row already exists for (workspace, email).
type InvitationStore interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Invitation, error)
	// CountPendingForEmail counts unexpired pending invitations across all workspaces.
	CountPendingForEmail(ctx context.Context, email string, now time.Time) (int, error)
	// ExpirePending flips pending rows for (workspace, email) that are past
	// expiry to expired and returns them as they were before the change.
	ExpirePending(ctx context.Context, workspaceID uuid.UUID, email string, now time.Time) ([]*domain.Invitation, error)
	// ExpireStale flips every pending row past expiry to expired.
	ExpireStale(ctx context.Context, now time.Time) ([]*domain.Invitation, error)
	// Transition moves inv from status from to inv.Status, also writing
	// AcceptedAt and AcceptedBy. It returns domain.ErrRaceLost when the row is
	// no longer in status from.
	Transition(ctx context.Context, inv *domain.Invitation, from domain.InvitationStatus) error
}

// UserStore persists local user records.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Task, error)
	Update(ctx context.Context, t *domain.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoomStore persists direct rooms. Create returns domain.ErrRaceLost when the
// canonical pair already has a room in the workspace.
type RoomStore interface {
	Create(ctx context.Context, r *domain.DirectRoom) error
	GetByPair(ctx context.Context, workspaceID, userA, userB uuid.UUID) (*domain.DirectRoom, error)
}

// ProfileStore persists business profiles.
type ProfileStore interface {
	// Get returns domain.ErrNotFound when no profile has been written yet.
	Get(ctx context.Context, workspaceID uuid.UUID) (*domain.BusinessProfile, error)
	Upsert(ctx context.Context, p *domain.BusinessProfile) error
}

// AuditFilter narrows an audit listing. Zero fields are ignored.
type AuditFilter struct {
	WorkspaceID *uuid.UUID
	Entity      string
	EntityID    string
	// Before, when set, keeps only records strictly older than it.
	Before time.Time
	Limit  int
}

// AuditStore is append-only.
type AuditStore interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]*domain.AuditRecord, error)
}

// Stores groups the stores bound to one connection or transaction.
type Stores interface {
	Facts() policy.FactSource
	Workspaces() WorkspaceStore
	Memberships() MembershipStore
	Invitations() InvitationStore
	Users() UserStore
	Tasks() TaskStore
	Rooms() RoomStore
	Profiles() ProfileStore
	Audit() AuditStore
}

// Store is the root handle. WithTx runs fn against stores bound to a single
// transaction, committing when fn returns nil and rolling back otherwise.
// Calls to WithTx must not be nested.
type Store interface {
	Stores
	WithTx(ctx context.Context, fn func(tx Stores) error) error
}
