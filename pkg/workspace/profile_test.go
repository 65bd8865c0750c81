package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/store"
)

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)

	empty, err := f.profiles.GetProfile(ctx, member, w.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if empty.LegalName != "" || empty.WorkspaceID != w.ID {
		t.Errorf("empty profile = %+v", empty)
	}

	if _, err := f.profiles.PutProfile(ctx, member, w.ID, ProfileInput{LegalName: "Acme"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("member PutProfile() error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.profiles.PutProfile(ctx, owner, w.ID, ProfileInput{LegalName: "Acme Inc"}); err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if _, err := f.profiles.PutProfile(ctx, owner, w.ID, ProfileInput{LegalName: "Acme Inc", Website: "acme.test"}); err != nil {
		t.Fatalf("second PutProfile() error = %v", err)
	}

	got, err := f.profiles.GetProfile(ctx, member, w.ID)
	if err != nil || got.Website != "acme.test" {
		t.Errorf("GetProfile() = %+v, %v", got, err)
	}

	recs := f.auditFor(t, domain.EntityBusinessProfile)
	if len(recs) != 2 || recs[0].Op != domain.AuditOpInsert || recs[1].Op != domain.AuditOpUpdate {
		t.Fatalf("profile audits = %+v", recs)
	}
	if cf := recs[1].ChangedFields; len(cf) != 1 || cf[0] != "website" {
		t.Errorf("changed fields = %v, want [website]", cf)
	}

	if _, err := f.profiles.GetProfile(ctx, principal("x@example.com"), w.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("outsider GetProfile() error = %v, want ErrNotFound", err)
	}
	if _, err := f.profiles.PutProfile(ctx, principal("x@example.com"), w.ID, ProfileInput{LegalName: "x"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("outsider PutProfile() error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.profiles.UpdateSubscription(ctx, principal("x@example.com"), w.ID, domain.PlanPro, 10); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("outsider UpdateSubscription() error = %v, want ErrUnauthorized", err)
	}
}

func TestSubscription_AuditChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)

	if _, err := f.profiles.UpdateSubscription(ctx, member, w.ID, domain.PlanPro, 10); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("member UpdateSubscription() error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.profiles.UpdateSubscription(ctx, owner, w.ID, "gold", 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad plan error = %v", err)
	}
	if _, err := f.profiles.UpdateSubscription(ctx, owner, w.ID, domain.PlanPro, 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("seats below members error = %v", err)
	}

	steps := []struct {
		plan  domain.Plan
		seats int
	}{
		{domain.PlanPro, 10},
		{domain.PlanPro, 20},
		{domain.PlanEnterprise, 50},
	}
	for _, s := range steps {
		if _, err := f.profiles.UpdateSubscription(ctx, owner, w.ID, s.plan, s.seats); err != nil {
			t.Fatalf("UpdateSubscription(%s, %d) error = %v", s.plan, s.seats, err)
		}
	}

	var updates []*domain.AuditRecord
	for _, r := range f.auditFor(t, domain.EntitySubscription) {
		if r.Op == domain.AuditOpUpdate {
			updates = append(updates, r)
		}
	}
	if len(updates) != len(steps) {
		t.Fatalf("update audits = %d, want %d", len(updates), len(steps))
	}
	for i := 0; i+1 < len(updates); i++ {
		if !jsonEqual(t, updates[i].After, updates[i+1].Before) {
			t.Errorf("after[%d] = %s, before[%d] = %s", i, updates[i].After, i+1, updates[i+1].Before)
		}
	}

	sub, err := f.profiles.GetSubscription(ctx, member, w.ID)
	if err != nil || sub.Plan != domain.PlanEnterprise || sub.Seats != 50 {
		t.Errorf("GetSubscription() = %+v, %v", sub, err)
	}

	// the workspace row carries the plan, so its own history chains from
	// insert through every subscription change to delete
	if err := f.members.DeleteWorkspace(ctx, owner, w.ID); err != nil {
		t.Fatalf("DeleteWorkspace() error = %v", err)
	}
	chain := f.auditFor(t, domain.EntityWorkspace)
	if len(chain) != len(steps)+2 {
		t.Fatalf("workspace audits = %d, want %d", len(chain), len(steps)+2)
	}
	if chain[0].Op != domain.AuditOpInsert || chain[len(chain)-1].Op != domain.AuditOpDelete {
		t.Errorf("workspace audits run %s..%s, want insert..delete", chain[0].Op, chain[len(chain)-1].Op)
	}
	for i := 0; i+1 < len(chain); i++ {
		if !jsonEqual(t, chain[i].After, chain[i+1].Before) {
			t.Errorf("workspace after[%d] = %s, before[%d] = %s", i, chain[i].After, i+1, chain[i+1].Before)
		}
	}
}

func TestAuditService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, member := principal("o@example.com"), principal("m@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, member)

	got, err := f.audit.List(ctx, owner, store.AuditFilter{WorkspaceID: &w.ID})
	if err != nil || len(got) == 0 {
		t.Errorf("owner List() = %d, %v", len(got), err)
	}
	got, err = f.audit.List(ctx, member, store.AuditFilter{})
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("member List() = %v, %v", got, err)
	}
	member.Capabilities = []domain.Capability{domain.CapabilityAuditRead}
	got, err = f.audit.List(ctx, member, store.AuditFilter{Limit: 1})
	if err != nil || len(got) != 1 {
		t.Fatalf("auditor List() = %d, %v", len(got), err)
	}
	if got[0].Entity != domain.EntityMembership || got[0].Op != domain.AuditOpInsert {
		t.Errorf("newest record = %s %s, want the member's join", got[0].Entity, got[0].Op)
	}

	all, err := f.audit.List(ctx, member, store.AuditFilter{WorkspaceID: &w.ID})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(all); i++ {
		if all[i].At.Before(all[i+1].At) {
			t.Errorf("record %d at %v is older than record %d at %v", i, all[i].At, i+1, all[i+1].At)
		}
	}
	older, err := f.audit.List(ctx, member, store.AuditFilter{WorkspaceID: &w.ID, Before: got[0].At})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range older {
		if !r.At.Before(got[0].At) {
			t.Errorf("record at %v not before cursor %v", r.At, got[0].At)
		}
	}
}

func jsonEqual(t *testing.T, a, b json.RawMessage) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return string(ja) == string(jb)
}
