// Package policy decides whether a principal may perform an operation on a
// workspace or one of its resources.
//
// Every rule is a pure predicate over Facts. Facts come from a single direct
// lookup of the workspace and membership tables (FactSource) that never
// evaluates a rule itself, so rules form a DAG rooted at that lookup and
// cannot recurse into one another.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// Op is an operation on a resource.
type Op string

const (
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// IsWrite reports whether op mutates state.
func (op Op) IsWrite() bool {
	return op != OpRead
}

// Kind names a rule in the rule graph.
type Kind string

const (
	// KindFacts is the base-table lookup every rule bottoms out in.
	KindFacts           Kind = "facts"
	KindWorkspace       Kind = "workspace"
	KindMembership      Kind = "membership"
	KindInvitation      Kind = "invitation"
	KindResource        Kind = "resource"
	KindBusinessProfile Kind = "business_profile"
	KindSubscription    Kind = "subscription"
	KindAudit           Kind = "audit"
)

// Facts are the membership facts for one (workspace, user) pair.
type Facts struct {
	WorkspaceID uuid.UUID
	OwnerID     uuid.UUID
	UserID      uuid.UUID
	// Role is empty when the user holds no membership row.
	Role domain.Role
}

// IsOwner reports whether the user owns the workspace.
func (f Facts) IsOwner() bool {
	return f.OwnerID != uuid.Nil && f.OwnerID == f.UserID
}

// IsMember reports whether the user holds a membership row.
func (f Facts) IsMember() bool {
	return f.Role != ""
}

// FactSource reads membership facts straight from the base tables.
// Implementations must not consult any rule in this package.
type FactSource interface {
	// WorkspaceFacts returns domain.ErrNotFound when the workspace does not exist.
	WorkspaceFacts(ctx context.Context, workspaceID, userID uuid.UUID) (Facts, error)
	OwnsAnyWorkspace(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Resource describes the ownership fields of a workspace-scoped resource.
type Resource struct {
	WorkspaceID uuid.UUID
	CreatedBy   uuid.UUID
	AssigneeID  *uuid.UUID
}

// rules is the declared dependency graph between predicates below.
var rules = func() *Graph {
	g := NewGraph()
	g.Add(KindWorkspace, KindFacts)
	g.Add(KindMembership, KindFacts)
	g.Add(KindInvitation, KindFacts)
	g.Add(KindResource, KindWorkspace, KindFacts)
	g.Add(KindBusinessProfile, KindWorkspace, KindFacts)
	g.Add(KindSubscription, KindWorkspace, KindFacts)
	g.Add(KindAudit, KindFacts)
	return g
}()

func init() {
	if err := rules.Validate(); err != nil {
		panic(err)
	}
}

// Rules returns the rule dependency graph.
func Rules() *Graph {
	return rules
}

// CanSeeWorkspace: owner or member.
func CanSeeWorkspace(f Facts) bool {
	return f.IsOwner() || f.IsMember()
}

// CanManageWorkspace: owner only. Covers deleting the workspace and managing
// memberships and invitations.
func CanManageWorkspace(f Facts) bool {
	return f.IsOwner()
}

// CanSeeMembership: the row is the actor's own, or the actor owns the row's
// workspace. f must be the actor's facts for m.WorkspaceID. Sibling members
// are not visible to each other.
func CanSeeMembership(f Facts, m *domain.Membership) bool {
	return m.UserID == f.UserID || f.IsOwner()
}

// CanAccessResource applies the resource rule for op.
func CanAccessResource(f Facts, op Op, r Resource) bool {
	if !CanSeeWorkspace(f) {
		return false
	}
	switch op {
	case OpRead, OpCreate:
		return true
	case OpUpdate, OpDelete:
		if r.CreatedBy == f.UserID || f.IsOwner() {
			return true
		}
		return r.AssigneeID != nil && *r.AssigneeID == f.UserID
	}
	return false
}

// CanAccessSettings applies the business-profile and subscription rule:
// members read, only the owner writes.
func CanAccessSettings(f Facts, op Op) bool {
	if op == OpRead {
		return CanSeeWorkspace(f)
	}
	return f.IsOwner()
}

// CanReadAudit: any workspace owner, or a principal granted audit:read.
// The ownership test is global, not scoped to the audited workspace.
func CanReadAudit(p domain.Principal, ownsAnyWorkspace bool) bool {
	return ownsAnyWorkspace || p.Has(domain.CapabilityAuditRead)
}

// Evaluator answers authorization questions against a FactSource.
type Evaluator struct {
	facts FactSource
}

// New creates an evaluator over src.
func New(src FactSource) *Evaluator {
	return &Evaluator{facts: src}
}

// Facts loads facts for the pair. A missing workspace is reported as
// domain.ErrNotFound.
func (e *Evaluator) Facts(ctx context.Context, workspaceID, userID uuid.UUID) (Facts, error) {
	f, err := e.facts.WorkspaceFacts(ctx, workspaceID, userID)
	if err != nil {
		return Facts{}, err
	}
	return f, nil
}

// Authorize loads facts and checks kind/op for the principal. Reads that are
// denied return domain.ErrNotFound so callers cannot tell a hidden row from a
// missing one; denied writes return domain.ErrUnauthorized, including writes
// to a workspace the actor cannot see. A missing workspace is not found.
func (e *Evaluator) Authorize(ctx context.Context, p domain.Principal, workspaceID uuid.UUID, kind Kind, op Op, r *Resource) (Facts, error) {
	f, err := e.Facts(ctx, workspaceID, p.UserID)
	if err != nil {
		return Facts{}, err
	}
	if !CanSeeWorkspace(f) {
		return f, Deny(op)
	}
	if !Allowed(f, kind, op, r) {
		return f, Deny(op)
	}
	return f, nil
}

// Allowed dispatches to the predicate for kind.
func Allowed(f Facts, kind Kind, op Op, r *Resource) bool {
	switch kind {
	case KindWorkspace:
		if op == OpRead {
			return CanSeeWorkspace(f)
		}
		return CanManageWorkspace(f)
	case KindMembership:
		if op == OpRead {
			return CanSeeWorkspace(f)
		}
		return CanManageWorkspace(f)
	case KindInvitation:
		return CanManageWorkspace(f)
	case KindResource:
		if r == nil {
			r = &Resource{WorkspaceID: f.WorkspaceID}
		}
		return CanAccessResource(f, op, *r)
	case KindBusinessProfile, KindSubscription:
		return CanAccessSettings(f, op)
	}
	return false
}

// Deny returns the error a denied op surfaces to callers.
func Deny(op Op) error {
	if op.IsWrite() {
		return domain.ErrUnauthorized
	}
	return domain.ErrNotFound
}

// IsDenied reports whether err is an authorization outcome rather than a fault.
func IsDenied(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized)
}

// String renders the facts for logs.
func (f Facts) String() string {
	return fmt.Sprintf("workspace=%s user=%s owner=%t role=%q", f.WorkspaceID, f.UserID, f.IsOwner(), f.Role)
}
