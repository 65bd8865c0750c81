package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/tendant/workspace-authz/pkg/domain"
)

func TestProvision_CreatesPersonalWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := principal("Alice@Example.com")

	res, err := f.signup.Provision(ctx, alice)
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if !res.Created || res.User.Email != "alice@example.com" {
		t.Errorf("result = %+v", res)
	}
	if res.Workspace == nil {
		t.Fatal("expected a personal workspace")
	}
	if res.Workspace.Name != "alice's Workspace" || res.Workspace.OwnerID != alice.UserID {
		t.Errorf("workspace = %+v", res.Workspace)
	}
	sub, err := f.profiles.GetSubscription(ctx, alice, res.Workspace.ID)
	if err != nil {
		t.Fatalf("GetSubscription() error = %v", err)
	}
	if sub.Plan != domain.PlanFree || sub.Seats != domain.DefaultSeats {
		t.Errorf("subscription = %+v", sub)
	}
}

func TestProvision_SkipsWorkspaceWhenInvited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)
	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", ""); err != nil {
		t.Fatal(err)
	}

	bob := principal("bob@x.com")
	res, err := f.signup.Provision(ctx, bob)
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if res.Workspace != nil {
		t.Errorf("workspace = %+v, want none", res.Workspace)
	}
	if res.PendingInvitations != 1 {
		t.Errorf("PendingInvitations = %d, want 1", res.PendingInvitations)
	}
	list, _ := f.members.ListWorkspaces(ctx, bob)
	if len(list) != 0 {
		t.Errorf("ListWorkspaces() len = %d, want 0", len(list))
	}
}

func TestProvision_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := principal("alice@example.com")

	if _, err := f.signup.Provision(ctx, alice); err != nil {
		t.Fatal(err)
	}
	res, err := f.signup.Provision(ctx, alice)
	if err != nil {
		t.Fatalf("second Provision() error = %v", err)
	}
	if res.Created || res.Workspace != nil {
		t.Errorf("second result = %+v", res)
	}
	list, _ := f.members.ListWorkspaces(ctx, alice)
	if len(list) != 1 {
		t.Errorf("workspaces = %d, want 1", len(list))
	}
}

func TestProvision_InvalidEmail(t *testing.T) {
	f := newFixture(t)
	if _, err := f.signup.Provision(context.Background(), principal("")); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Errorf("Provision() error = %v, want ErrInvalidEmail", err)
	}
}
