// Package audit records before/after images of mutations to an append-only
// log and serves filtered reads of it.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

// Entry describes one mutation. Before is nil for inserts and After is nil
// for deletes.
type Entry struct {
	Entity      string
	EntityID    string
	WorkspaceID *uuid.UUID
	Op          domain.AuditOp
	ActorID     uuid.UUID
	Before      any
	After       any
}

// sensitive entities fail the surrounding write when their audit row cannot
// be stored.
var sensitive = map[string]bool{
	domain.EntityWorkspace:       true,
	domain.EntityMembership:      true,
	domain.EntityInvitation:      true,
	domain.EntitySubscription:    true,
	domain.EntityBusinessProfile: true,
}

// IsSensitive reports whether audit failures for entity must abort the write.
func IsSensitive(entity string) bool {
	return sensitive[entity]
}

// Recorder writes audit records.
type Recorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil logger discards best-effort failures.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends e to s. For sensitive entities any failure is returned so
// the caller's transaction rolls back; for the rest it is logged and dropped.
func (r *Recorder) Record(ctx context.Context, s store.AuditStore, e Entry) error {
	err := r.record(ctx, s, e)
	if err == nil {
		return nil
	}
	if IsSensitive(e.Entity) {
		return fmt.Errorf("audit %s %s: %w", e.Entity, e.Op, err)
	}
	r.logger.WarnContext(ctx, "audit write dropped",
		"entity", e.Entity,
		"entity_id", e.EntityID,
		"op", string(e.Op),
		"error", err,
	)
	return nil
}

func (r *Recorder) record(ctx context.Context, s store.AuditStore, e Entry) error {
	before, err := image(e.Before)
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := image(e.After)
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}

	rec := &domain.AuditRecord{
		ID:          uuid.New(),
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		WorkspaceID: e.WorkspaceID,
		Op:          e.Op,
		ActorID:     e.ActorID,
		Before:      before,
		After:       after,
		At:          r.now(),
	}
	if e.Op == domain.AuditOpUpdate {
		rec.ChangedFields, err = ChangedFields(before, after)
		if err != nil {
			return err
		}
	}
	return s.Append(ctx, rec)
}

func image(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return b, nil
}

// ChangedFields returns the sorted top-level keys whose values differ between
// two JSON object images. A key present in only one image counts as changed.
func ChangedFields(before, after json.RawMessage) ([]string, error) {
	b, err := fields(before)
	if err != nil {
		return nil, fmt.Errorf("decode before: %w", err)
	}
	a, err := fields(after)
	if err != nil {
		return nil, fmt.Errorf("decode after: %w", err)
	}

	var changed []string
	for k, bv := range b {
		if av, ok := a[k]; !ok || !sameJSON(bv, av) {
			changed = append(changed, k)
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func fields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// List returns audit records matching filter when p may read the trail.
// A principal without access gets an empty result rather than an error.
func List(ctx context.Context, src store.Stores, p domain.Principal, filter store.AuditFilter) ([]*domain.AuditRecord, error) {
	owns, err := src.Facts().OwnsAnyWorkspace(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadAudit(p, owns) {
		return []*domain.AuditRecord{}, nil
	}
	records, err := src.Audit().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return records, nil
}
