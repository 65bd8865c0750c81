package audit

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/store"
	"github.com/tendant/workspace-authz/pkg/store/memstore"
)

func TestChangedFields(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   []string
	}{
		{
			name:   "no change",
			before: `{"plan":"free","seats":5}`,
			after:  `{"plan":"free","seats":5}`,
			want:   nil,
		},
		{
			name:   "one field",
			before: `{"plan":"free","seats":5}`,
			after:  `{"plan":"pro","seats":5}`,
			want:   []string{"plan"},
		},
		{
			name:   "sorted",
			before: `{"seats":5,"plan":"free","name":"a"}`,
			after:  `{"seats":10,"plan":"pro","name":"a"}`,
			want:   []string{"plan", "seats"},
		},
		{
			name:   "whitespace is not a change",
			before: `{"a": {"b": 1}}`,
			after:  `{"a":{"b":1}}`,
			want:   nil,
		},
		{
			name:   "added and removed keys",
			before: `{"a":1,"b":2}`,
			after:  `{"b":2,"c":3}`,
			want:   []string{"a", "c"},
		},
		{
			name:   "null to value",
			before: `{"assignee_id":null}`,
			after:  `{"assignee_id":"x"}`,
			want:   []string{"assignee_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChangedFields(json.RawMessage(tt.before), json.RawMessage(tt.after))
			if err != nil {
				t.Fatalf("ChangedFields() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChangedFields() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSensitive(t *testing.T) {
	tests := []struct {
		entity string
		want   bool
	}{
		{domain.EntityWorkspace, true},
		{domain.EntityMembership, true},
		{domain.EntityInvitation, true},
		{domain.EntitySubscription, true},
		{domain.EntityBusinessProfile, true},
		{domain.EntityTask, false},
		{domain.EntityRoom, false},
	}
	for _, tt := range tests {
		if got := IsSensitive(tt.entity); got != tt.want {
			t.Errorf("IsSensitive(%q) = %v, want %v", tt.entity, got, tt.want)
		}
	}
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *domain.AuditRecord) error {
	return errors.New("disk full")
}

func (failingAudit) List(context.Context, store.AuditFilter) ([]*domain.AuditRecord, error) {
	return nil, nil
}

func TestRecord_FailurePolicy(t *testing.T) {
	r := NewRecorder(nil)
	ctx := context.Background()

	err := r.Record(ctx, failingAudit{}, Entry{Entity: domain.EntityMembership, Op: domain.AuditOpInsert, After: map[string]string{"role": "member"}})
	if err == nil {
		t.Error("sensitive entity: Record() = nil, want error")
	}

	err = r.Record(ctx, failingAudit{}, Entry{Entity: domain.EntityTask, Op: domain.AuditOpInsert, After: map[string]string{"title": "x"}})
	if err != nil {
		t.Errorf("best-effort entity: Record() = %v, want nil", err)
	}
}

func TestRecord_Images(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := NewRecorder(nil)
	ws := uuid.New()
	actor := uuid.New()

	v1 := domain.Subscription{WorkspaceID: ws, Plan: domain.PlanFree, Seats: 5}
	v2 := domain.Subscription{WorkspaceID: ws, Plan: domain.PlanPro, Seats: 5}
	v3 := domain.Subscription{WorkspaceID: ws, Plan: domain.PlanPro, Seats: 20}

	entries := []Entry{
		{Op: domain.AuditOpInsert, After: v1},
		{Op: domain.AuditOpUpdate, Before: v1, After: v2},
		{Op: domain.AuditOpUpdate, Before: v2, After: v3},
		{Op: domain.AuditOpDelete, Before: v3},
	}
	for _, e := range entries {
		e.Entity = domain.EntitySubscription
		e.EntityID = ws.String()
		e.WorkspaceID = &ws
		e.ActorID = actor
		if err := r.Record(ctx, s.Audit(), e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	recs, err := s.Audit().List(ctx, store.AuditFilter{Entity: domain.EntitySubscription, EntityID: ws.String()})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Fatalf("records = %d, want 4", len(recs))
	}
	if recs[0].Op != domain.AuditOpDelete {
		t.Errorf("newest record op = %s, want delete", recs[0].Op)
	}
	slices.Reverse(recs)

	if recs[0].Before != nil || recs[0].After == nil {
		t.Error("insert must carry only an after image")
	}
	if recs[3].Before == nil || recs[3].After != nil {
		t.Error("delete must carry only a before image")
	}
	if !reflect.DeepEqual(recs[1].ChangedFields, []string{"plan"}) {
		t.Errorf("changed fields = %v, want [plan]", recs[1].ChangedFields)
	}
	if !reflect.DeepEqual(recs[2].ChangedFields, []string{"seats"}) {
		t.Errorf("changed fields = %v, want [seats]", recs[2].ChangedFields)
	}

	// consecutive records chain: after of one is before of the next
	for i := 0; i < len(recs)-1; i++ {
		if string(recs[i].After) != string(recs[i+1].Before) {
			t.Errorf("record %d after = %s, record %d before = %s", i, recs[i].After, i+1, recs[i+1].Before)
		}
	}
}

func TestList_Gate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	owner := uuid.New()

	ws := &domain.Workspace{ID: uuid.New(), OwnerID: owner, Plan: domain.PlanFree, Seats: 5}
	if err := s.Workspaces().Create(ctx, ws); err != nil {
		t.Fatal(err)
	}
	if err := NewRecorder(nil).Record(ctx, s.Audit(), Entry{Entity: domain.EntityWorkspace, EntityID: ws.ID.String(), Op: domain.AuditOpInsert, ActorID: owner, After: ws}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    domain.Principal
		want int
	}{
		{"owner of a workspace", domain.Principal{UserID: owner}, 1},
		{"auditor capability", domain.Principal{UserID: uuid.New(), Capabilities: []domain.Capability{domain.CapabilityAuditRead}}, 1},
		{"plain user", domain.Principal{UserID: uuid.New()}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := List(ctx, s, tt.p, store.AuditFilter{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if recs == nil || len(recs) != tt.want {
				t.Errorf("List() = %d records, want %d", len(recs), tt.want)
			}
		})
	}
}
