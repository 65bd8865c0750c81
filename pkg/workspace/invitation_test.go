package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/domain"
)

func TestInvitationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := principal("u1@x.com")
	w1 := f.workspace(t, u1)

	inv, token, err := f.invitations.CreateInvitation(ctx, u1, w1.ID, "bob@x.com", domain.RoleMember)
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}
	if inv.Status != domain.InvitationStatusPending || inv.TokenHash != auth.HashToken(token) {
		t.Fatalf("invitation = %+v", inv)
	}

	carol := principal("carol@x.com")
	if _, err := f.invitations.AcceptInvitation(ctx, carol, token); !errors.Is(err, domain.ErrEmailMismatch) {
		t.Fatalf("carol AcceptInvitation() error = %v, want ErrEmailMismatch", err)
	}

	bob := principal("bob@x.com")
	res, err := f.invitations.AcceptInvitation(ctx, bob, token)
	if err != nil {
		t.Fatalf("bob AcceptInvitation() error = %v", err)
	}
	if res.WorkspaceID != w1.ID || res.Role != domain.RoleMember || res.AlreadyMember {
		t.Errorf("AcceptInvitation() = %+v", res)
	}
	m, err := f.store.Memberships().Get(ctx, w1.ID, bob.UserID)
	if err != nil {
		t.Fatalf("membership not created: %v", err)
	}
	if m.InvitedBy == nil || *m.InvitedBy != u1.UserID {
		t.Errorf("membership invited_by = %v, want %v", m.InvitedBy, u1.UserID)
	}
	stored, _ := f.store.Invitations().GetByID(ctx, inv.ID)
	if stored.Status != domain.InvitationStatusAccepted || stored.AcceptedBy == nil || *stored.AcceptedBy != bob.UserID {
		t.Errorf("stored invitation = %+v", stored)
	}

	// the acceptor redeeming again is idempotent
	again, err := f.invitations.AcceptInvitation(ctx, bob, token)
	if err != nil {
		t.Fatalf("second AcceptInvitation() error = %v", err)
	}
	if again.WorkspaceID != w1.ID || !again.AlreadyMember {
		t.Errorf("second AcceptInvitation() = %+v, want AlreadyMember", again)
	}

	// another account with the same email cannot reuse the token
	other := principal("bob@x.com")
	if _, err := f.invitations.AcceptInvitation(ctx, other, token); !errors.Is(err, domain.ErrAlreadyUsed) {
		t.Errorf("other account AcceptInvitation() error = %v, want ErrAlreadyUsed", err)
	}

	// nor can the acceptor after leaving the workspace
	if err := f.members.RemoveMember(ctx, bob, w1.ID, bob.UserID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if _, err := f.invitations.AcceptInvitation(ctx, bob, token); !errors.Is(err, domain.ErrAlreadyUsed) {
		t.Errorf("AcceptInvitation() after leaving error = %v, want ErrAlreadyUsed", err)
	}
}

func TestCreateInvitation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)

	tests := []struct {
		name    string
		actor   domain.Principal
		email   string
		role    domain.Role
		wantErr error
	}{
		{"bad email", owner, "not-an-email", domain.RoleMember, domain.ErrInvalidEmail},
		{"owner role", owner, "new@example.com", domain.RoleOwner, domain.ErrInvalidRole},
		{"member cannot invite", member, "new@example.com", domain.RoleMember, domain.ErrUnauthorized},
		{"outsider", principal("x@example.com"), "new@example.com", domain.RoleMember, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.invitations.CreateInvitation(ctx, tt.actor, w.ID, tt.email, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateInvitation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateInvitation_NormalizesAndMails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)

	inv, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "  Bob@X.com ", "")
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}
	if inv.Email != "bob@x.com" || inv.Role != domain.RoleMember {
		t.Errorf("invitation = %+v", inv)
	}
	if want := f.clock.Now().Add(DefaultInvitationTTL); !inv.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", inv.ExpiresAt, want)
	}
	if len(f.mailer.sent) != 1 || !strings.Contains(f.mailer.sent[0], "token="+token) {
		t.Errorf("mailer sent = %v", f.mailer.sent)
	}
}

func TestCreateInvitation_MailFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	owner := principal("o@example.com")
	w := f.workspace(t, owner)

	if _, _, err := f.invitations.CreateInvitation(context.Background(), owner, w.ID, "bob@x.com", ""); err != nil {
		t.Errorf("CreateInvitation() error = %v", err)
	}
}

func TestCreateInvitation_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)

	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "BOB@x.com", ""); !errors.Is(err, domain.ErrDuplicatePendingInvitation) {
		t.Errorf("second CreateInvitation() error = %v, want ErrDuplicatePendingInvitation", err)
	}

	// once the first invitation is past due a fresh one replaces it
	f.clock.Advance(DefaultInvitationTTL + time.Minute)
	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", ""); err != nil {
		t.Errorf("CreateInvitation() after expiry error = %v", err)
	}
	list, _ := f.invitations.ListInvitations(ctx, owner, w.ID)
	var pending, expired int
	for _, inv := range list {
		switch inv.Status {
		case domain.InvitationStatusPending:
			pending++
		case domain.InvitationStatusExpired:
			expired++
		}
	}
	if pending != 1 || expired != 1 {
		t.Errorf("pending = %d, expired = %d, want 1 and 1", pending, expired)
	}
}

func TestCreateInvitation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", "")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicatePendingInvitation):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Errorf("ok = %d, duplicates = %d", ok, dup)
	}
}

func TestAcceptInvitation_EmailMismatchInEveryState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)
	mallory := principal("mallory@x.com")

	states := map[string]func(t *testing.T) string{
		"pending": func(t *testing.T) string {
			_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "p@x.com", "")
			if err != nil {
				t.Fatal(err)
			}
			return token
		},
		"accepted": func(t *testing.T) string {
			_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "a@x.com", "")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.invitations.AcceptInvitation(ctx, principal("a@x.com"), token); err != nil {
				t.Fatal(err)
			}
			return token
		},
		"revoked": func(t *testing.T) string {
			inv, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "r@x.com", "")
			if err != nil {
				t.Fatal(err)
			}
			if err := f.invitations.RevokeInvitation(ctx, owner, w.ID, inv.ID); err != nil {
				t.Fatal(err)
			}
			return token
		},
	}
	for name, setup := range states {
		t.Run(name, func(t *testing.T) {
			token := setup(t)
			if _, err := f.invitations.AcceptInvitation(ctx, mallory, token); !errors.Is(err, domain.ErrEmailMismatch) {
				t.Errorf("AcceptInvitation() error = %v, want ErrEmailMismatch", err)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "e@x.com", "")
		if err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(DefaultInvitationTTL + time.Hour)
		if _, err := f.invitations.AcceptInvitation(ctx, mallory, token); !errors.Is(err, domain.ErrEmailMismatch) {
			t.Errorf("AcceptInvitation() error = %v, want ErrEmailMismatch", err)
		}
	})
}

func TestAcceptInvitation_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)

	t.Run("unknown token", func(t *testing.T) {
		if _, err := f.invitations.AcceptInvitation(ctx, principal("a@x.com"), "nope"); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
		if _, err := f.invitations.AcceptInvitation(ctx, principal("a@x.com"), ""); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("empty token error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("unverified", func(t *testing.T) {
		_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "u@x.com", "")
		if err != nil {
			t.Fatal(err)
		}
		p := principal("U@x.com")
		p.EmailVerified = false
		if _, err := f.invitations.AcceptInvitation(ctx, p, token); !errors.Is(err, domain.ErrEmailNotVerified) {
			t.Errorf("error = %v, want ErrEmailNotVerified", err)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		inv, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "r@x.com", "")
		if err != nil {
			t.Fatal(err)
		}
		if err := f.invitations.RevokeInvitation(ctx, owner, w.ID, inv.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := f.invitations.AcceptInvitation(ctx, principal("r@x.com"), token); !errors.Is(err, domain.ErrRevoked) {
			t.Errorf("error = %v, want ErrRevoked", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		inv, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "e@x.com", "")
		if err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(DefaultInvitationTTL + time.Second)
		if _, err := f.invitations.AcceptInvitation(ctx, principal("e@x.com"), token); !errors.Is(err, domain.ErrExpired) {
			t.Errorf("error = %v, want ErrExpired", err)
		}
		stored, _ := f.store.Invitations().GetByID(ctx, inv.ID)
		if stored.Status != domain.InvitationStatusExpired {
			t.Errorf("status = %q, want expired", stored.Status)
		}
	})
}

func TestAcceptInvitation_AlreadyMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, bob := principal("o@example.com"), principal("bob@x.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, bob)

	inv, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.invitations.AcceptInvitation(ctx, bob, token)
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if !res.AlreadyMember {
		t.Error("AlreadyMember = false, want true")
	}
	stored, _ := f.store.Invitations().GetByID(ctx, inv.ID)
	if stored.Status != domain.InvitationStatusAccepted {
		t.Errorf("status = %q, want accepted", stored.Status)
	}
}

func TestAcceptInvitation_SeatLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)
	if _, err := f.profiles.UpdateSubscription(ctx, owner, w.ID, domain.PlanFree, 1); err != nil {
		t.Fatal(err)
	}

	_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.invitations.AcceptInvitation(ctx, principal("bob@x.com"), token); !errors.Is(err, domain.ErrSeatLimitReached) {
		t.Fatalf("AcceptInvitation() error = %v, want ErrSeatLimitReached", err)
	}

	// the failed attempt left the invitation redeemable
	bob := principal("bob@x.com")
	bob.Capabilities = []domain.Capability{domain.CapabilityBypassLimits}
	if _, err := f.invitations.AcceptInvitation(ctx, bob, token); err != nil {
		t.Errorf("AcceptInvitation() with bypass error = %v", err)
	}
}

func TestAcceptInvitation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, bob := principal("o@example.com"), principal("bob@x.com")
	w := f.workspace(t, owner)
	_, token, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", "")
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]*domain.AcceptResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.invitations.AcceptInvitation(ctx, bob, token)
		}(i)
	}
	wg.Wait()

	var fresh int
	for i, err := range errs {
		if err != nil {
			t.Errorf("AcceptInvitation() error = %v", err)
			continue
		}
		if results[i].WorkspaceID != w.ID {
			t.Errorf("AcceptInvitation() = %+v", results[i])
		}
		if !results[i].AlreadyMember {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("fresh acceptances = %d, want 1", fresh)
	}
	members, _ := f.store.Memberships().ListByWorkspace(ctx, w.ID)
	if len(members) != 2 {
		t.Errorf("memberships = %d, want 2", len(members))
	}
}

func TestRevokeInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)

	inv, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.invitations.RevokeInvitation(ctx, member, w.ID, inv.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("member RevokeInvitation() error = %v, want ErrUnauthorized", err)
	}
	if err := f.invitations.RevokeInvitation(ctx, owner, w.ID, inv.ID); err != nil {
		t.Fatalf("RevokeInvitation() error = %v", err)
	}
	if err := f.invitations.RevokeInvitation(ctx, owner, w.ID, inv.ID); !errors.Is(err, domain.ErrRevoked) {
		t.Errorf("second RevokeInvitation() error = %v, want ErrRevoked", err)
	}

	// revoking frees the pair for a new invitation
	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", ""); err != nil {
		t.Errorf("CreateInvitation() after revoke error = %v", err)
	}
}

func TestListInvitations_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)
	if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, "bob@x.com", ""); err != nil {
		t.Fatal(err)
	}

	got, err := f.invitations.ListInvitations(ctx, owner, w.ID)
	if err != nil || len(got) != 1 {
		t.Errorf("owner ListInvitations() = %d, %v", len(got), err)
	}
	got, err = f.invitations.ListInvitations(ctx, member, w.ID)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("member ListInvitations() = %v, %v", got, err)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := principal("o@example.com")
	w := f.workspace(t, owner)
	for _, email := range []string{"a@x.com", "b@x.com"} {
		if _, _, err := f.invitations.CreateInvitation(ctx, owner, w.ID, email, ""); err != nil {
			t.Fatal(err)
		}
	}

	if n, err := f.invitations.ExpireStale(ctx); err != nil || n != 0 {
		t.Fatalf("ExpireStale() = %d, %v, want 0", n, err)
	}
	f.clock.Advance(DefaultInvitationTTL + time.Minute)
	if n, err := f.invitations.ExpireStale(ctx); err != nil || n != 2 {
		t.Fatalf("ExpireStale() = %d, %v, want 2", n, err)
	}

	var updates int
	for _, r := range f.auditFor(t, domain.EntityInvitation) {
		if r.Op == domain.AuditOpUpdate {
			updates++
			if len(r.ChangedFields) != 1 || r.ChangedFields[0] != "status" {
				t.Errorf("changed fields = %v, want [status]", r.ChangedFields)
			}
		}
	}
	if updates != 2 {
		t.Errorf("update audits = %d, want 2", updates)
	}
}
