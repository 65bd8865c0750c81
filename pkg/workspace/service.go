// Package workspace implements the workspace, membership, invitation, signup
// and resource operations on top of a store.Store. Every operation takes the
// calling principal explicitly and checks it with the policy package before
// touching data.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

const tracerName = "github.com/tendant/workspace-authz/pkg/workspace"

// Deps are the collaborators shared by every service in this package.
type Deps struct {
	Store  store.Store
	Audit  *audit.Recorder
	Logger *slog.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

type base struct {
	store  store.Store
	audit  *audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

func newBase(d Deps) base {
	b := base{store: d.Store, audit: d.Audit, logger: d.Logger, now: d.Now}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.audit == nil {
		b.audit = audit.NewRecorder(b.logger)
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b
}

// evaluator returns a policy evaluator reading facts from s. Inside a
// transaction s must be the transaction's stores.
func evaluator(s store.Stores) *policy.Evaluator {
	return policy.New(s.Facts())
}

func (b *base) record(ctx context.Context, s store.Stores, e audit.Entry) error {
	return b.audit.Record(ctx, s.Audit(), e)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan marks the span failed for faults. Authorization outcomes and
// validation errors are expected and leave the span status unset.
func endSpan(span trace.Span, err *error) {
	if err != nil && *err != nil && domain.CodeOf(*err) == "internal" {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// checkSeats rejects a new membership when the workspace is full, unless the
// principal may bypass limits.
func checkSeats(ctx context.Context, tx store.Stores, p domain.Principal, workspaceID uuid.UUID) error {
	if p.Has(domain.CapabilityBypassLimits) {
		return nil
	}
	w, err := tx.Workspaces().GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	n, err := tx.Memberships().Count(ctx, workspaceID)
	if err != nil {
		return err
	}
	if n >= w.Seats {
		return domain.ErrSeatLimitReached
	}
	return nil
}

// listDenied reports whether a list read should come back empty instead of
// failing.
func listDenied(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized)
}

func ptr[T any](v T) *T {
	return &v
}

func workspaceAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("workspace.id", id.String())
}
