package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

var (
	wsID    = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	ownerID = uuid.MustParse("20000000-0000-0000-0000-000000000001")
	memberA = uuid.MustParse("20000000-0000-0000-0000-000000000002")
	memberB = uuid.MustParse("20000000-0000-0000-0000-000000000003")
	outside = uuid.MustParse("20000000-0000-0000-0000-000000000004")
)

func factsFor(user uuid.UUID) Facts {
	f := Facts{WorkspaceID: wsID, OwnerID: ownerID, UserID: user}
	switch user {
	case ownerID:
		f.Role = domain.RoleOwner
	case memberA, memberB:
		f.Role = domain.RoleMember
	}
	return f
}

func TestCanSeeWorkspace(t *testing.T) {
	tests := []struct {
		name string
		f    Facts
		want bool
	}{
		{"owner", factsFor(ownerID), true},
		{"member", factsFor(memberA), true},
		{"outsider", factsFor(outside), false},
		{
			// owner with a missing membership row still sees the workspace
			name: "owner without membership row",
			f:    Facts{WorkspaceID: wsID, OwnerID: ownerID, UserID: ownerID},
			want: true,
		},
		{"zero facts", Facts{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanSeeWorkspace(tt.f); got != tt.want {
				t.Errorf("CanSeeWorkspace() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanSeeMembership(t *testing.T) {
	rowA := &domain.Membership{WorkspaceID: wsID, UserID: memberA, Role: domain.RoleMember}

	tests := []struct {
		name  string
		actor uuid.UUID
		want  bool
	}{
		{"own row", memberA, true},
		{"workspace owner", ownerID, true},
		{"sibling member", memberB, false},
		{"outsider", outside, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanSeeMembership(factsFor(tt.actor), rowA); got != tt.want {
				t.Errorf("CanSeeMembership() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanAccessResource(t *testing.T) {
	assignee := memberB
	task := Resource{WorkspaceID: wsID, CreatedBy: memberA, AssigneeID: &assignee}
	unassigned := Resource{WorkspaceID: wsID, CreatedBy: memberA}

	tests := []struct {
		name  string
		actor uuid.UUID
		op    Op
		r     Resource
		want  bool
	}{
		{"member reads", memberB, OpRead, unassigned, true},
		{"member creates", memberB, OpCreate, unassigned, true},
		{"outsider reads", outside, OpRead, unassigned, false},
		{"outsider creates", outside, OpCreate, unassigned, false},
		{"creator updates", memberA, OpUpdate, unassigned, true},
		{"creator deletes", memberA, OpDelete, unassigned, true},
		{"assignee updates", memberB, OpUpdate, task, true},
		{"non-assignee member updates", memberB, OpUpdate, unassigned, false},
		{"non-assignee member deletes", memberB, OpDelete, unassigned, false},
		{"owner updates", ownerID, OpUpdate, unassigned, true},
		{"owner deletes", ownerID, OpDelete, task, true},
		{
			// a former member keeps created_by but loses workspace visibility
			name:  "creator outside workspace",
			actor: outside,
			op:    OpUpdate,
			r:     Resource{WorkspaceID: wsID, CreatedBy: outside},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccessResource(factsFor(tt.actor), tt.op, tt.r); got != tt.want {
				t.Errorf("CanAccessResource(%s) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestCanAccessSettings(t *testing.T) {
	tests := []struct {
		name  string
		actor uuid.UUID
		op    Op
		want  bool
	}{
		{"owner reads", ownerID, OpRead, true},
		{"owner updates", ownerID, OpUpdate, true},
		{"owner creates", ownerID, OpCreate, true},
		{"member reads", memberA, OpRead, true},
		{"member updates", memberA, OpUpdate, false},
		{"member deletes", memberA, OpDelete, false},
		{"outsider reads", outside, OpRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccessSettings(factsFor(tt.actor), tt.op); got != tt.want {
				t.Errorf("CanAccessSettings(%s) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestCanReadAudit(t *testing.T) {
	plain := domain.Principal{UserID: memberA}
	auditor := domain.Principal{UserID: memberA, Capabilities: []domain.Capability{domain.CapabilityAuditRead}}

	if CanReadAudit(plain, false) {
		t.Error("non-owner without capability must not read audit")
	}
	if !CanReadAudit(plain, true) {
		t.Error("owner of any workspace reads audit")
	}
	if !CanReadAudit(auditor, false) {
		t.Error("audit:read capability grants access")
	}
}

type countingSource struct {
	calls int
}

func (s *countingSource) WorkspaceFacts(_ context.Context, workspaceID, userID uuid.UUID) (Facts, error) {
	s.calls++
	if workspaceID != wsID {
		return Facts{}, domain.ErrNotFound
	}
	return factsFor(userID), nil
}

func (s *countingSource) OwnsAnyWorkspace(_ context.Context, userID uuid.UUID) (bool, error) {
	s.calls++
	return userID == ownerID, nil
}

func TestEvaluator_Authorize(t *testing.T) {
	tests := []struct {
		name    string
		actor   uuid.UUID
		ws      uuid.UUID
		kind    Kind
		op      Op
		wantErr error
	}{
		{"owner reads workspace", ownerID, wsID, KindWorkspace, OpRead, nil},
		{"member reads workspace", memberA, wsID, KindWorkspace, OpRead, nil},
		{"outsider reads workspace", outside, wsID, KindWorkspace, OpRead, domain.ErrNotFound},
		{"missing workspace", ownerID, uuid.New(), KindWorkspace, OpRead, domain.ErrNotFound},
		{"member deletes workspace", memberA, wsID, KindWorkspace, OpDelete, domain.ErrUnauthorized},
		{"owner deletes workspace", ownerID, wsID, KindWorkspace, OpDelete, nil},
		{"member invites", memberA, wsID, KindInvitation, OpCreate, domain.ErrUnauthorized},
		{"owner invites", ownerID, wsID, KindInvitation, OpCreate, nil},
		{"member adds member", memberA, wsID, KindMembership, OpCreate, domain.ErrUnauthorized},
		{"member lists members", memberA, wsID, KindMembership, OpRead, nil},
		{"member updates subscription", memberA, wsID, KindSubscription, OpUpdate, domain.ErrUnauthorized},
		{"member reads profile", memberA, wsID, KindBusinessProfile, OpRead, nil},
		{"outsider creates resource", outside, wsID, KindResource, OpCreate, domain.ErrUnauthorized},
		{"outsider reads resource", outside, wsID, KindResource, OpRead, domain.ErrNotFound},
		{"outsider invites", outside, wsID, KindInvitation, OpCreate, domain.ErrUnauthorized},
		{"outsider updates profile", outside, wsID, KindBusinessProfile, OpUpdate, domain.ErrUnauthorized},
		{"missing workspace write", ownerID, uuid.New(), KindResource, OpCreate, domain.ErrNotFound},
		{"member creates resource", memberB, wsID, KindResource, OpCreate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &countingSource{}
			ev := New(src)

			_, err := ev.Authorize(context.Background(), domain.Principal{UserID: tt.actor}, tt.ws, tt.kind, tt.op, nil)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Authorize() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authorize() = %v, want %v", err, tt.wantErr)
			}
			// one base lookup per decision, never a nested evaluation
			if src.calls != 1 {
				t.Errorf("fact lookups = %d, want 1", src.calls)
			}
		})
	}
}

func TestAllowed_UnknownKind(t *testing.T) {
	if Allowed(factsFor(ownerID), Kind("unknown"), OpRead, nil) {
		t.Error("unknown kinds must be denied")
	}
	if Allowed(factsFor(ownerID), KindAudit, OpRead, nil) {
		t.Error("audit is not workspace scoped and must go through CanReadAudit")
	}
}

func TestDeny(t *testing.T) {
	if !errors.Is(Deny(OpRead), domain.ErrNotFound) {
		t.Error("denied reads must look like missing rows")
	}
	for _, op := range []Op{OpCreate, OpUpdate, OpDelete} {
		if !errors.Is(Deny(op), domain.ErrUnauthorized) {
			t.Errorf("denied %s must be ErrUnauthorized", op)
		}
	}
}
