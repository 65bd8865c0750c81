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

const maxProfileFieldLen = 500

// ProfileInput carries the business profile fields. Their content is not
// interpreted.
type ProfileInput struct {
	LegalName string
	Website   string
	Phone     string
	Address   string
}

// ProfileService manages workspace settings: the business profile and the
// subscription.
type ProfileService struct {
	base
}

// NewProfileService creates a new profile service.
func NewProfileService(d Deps) *ProfileService {
	return &ProfileService{base: newBase(d)}
}

// GetProfile returns the business profile of a workspace. A workspace without
// one yields an empty profile.
func (s *ProfileService) GetProfile(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (bp *domain.BusinessProfile, err error) {
	ctx, span := startSpan(ctx, "workspace.GetProfile", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindBusinessProfile, policy.OpRead, nil); err != nil {
		return nil, err
	}
	bp, err = s.store.Profiles().Get(ctx, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.BusinessProfile{WorkspaceID: workspaceID}, nil
	}
	return bp, err
}

// PutProfile writes the business profile. Owner only.
func (s *ProfileService) PutProfile(ctx context.Context, p domain.Principal, workspaceID uuid.UUID, in ProfileInput) (bp *domain.BusinessProfile, err error) {
	ctx, span := startSpan(ctx, "workspace.PutProfile", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	after := &domain.BusinessProfile{
		WorkspaceID: workspaceID,
		LegalName:   auth.CleanText(in.LegalName),
		Website:     auth.CleanText(in.Website),
		Phone:       auth.CleanText(in.Phone),
		Address:     auth.CleanText(in.Address),
	}
	for field, v := range map[string]string{
		"legal_name": after.LegalName,
		"website":    after.Website,
		"phone":      after.Phone,
		"address":    after.Address,
	} {
		if err := auth.ValidateLength(field, v, 0, maxProfileFieldLen); err != nil {
			return nil, err
		}
	}

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindBusinessProfile, policy.OpUpdate, nil); err != nil {
			return err
		}

		op := domain.AuditOpUpdate
		before, err := tx.Profiles().Get(ctx, workspaceID)
		if errors.Is(err, domain.ErrNotFound) {
			op, before = domain.AuditOpInsert, nil
		} else if err != nil {
			return err
		}

		after.UpdatedAt = s.now()
		if err := tx.Profiles().Upsert(ctx, after); err != nil {
			return err
		}
		e := audit.Entry{
			Entity:      domain.EntityBusinessProfile,
			EntityID:    workspaceID.String(),
			WorkspaceID: &workspaceID,
			Op:          op,
			ActorID:     p.UserID,
			After:       after,
		}
		if before != nil {
			e.Before = before
		}
		return s.record(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// GetSubscription returns the plan and seats of a workspace.
func (s *ProfileService) GetSubscription(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (sub *domain.Subscription, err error) {
	ctx, span := startSpan(ctx, "workspace.GetSubscription", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindSubscription, policy.OpRead, nil); err != nil {
		return nil, err
	}
	w, err := s.store.Workspaces().GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return ptr(w.Subscription()), nil
}

// UpdateSubscription changes the plan and seats of a workspace. Owner only.
// Seats may not drop below the current member count.
func (s *ProfileService) UpdateSubscription(ctx context.Context, p domain.Principal, workspaceID uuid.UUID, plan domain.Plan, seats int) (sub *domain.Subscription, err error) {
	ctx, span := startSpan(ctx, "workspace.UpdateSubscription", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if !plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", domain.ErrInvalidInput, plan)
	}
	if seats < 1 {
		return nil, fmt.Errorf("%w: seats must be at least 1", domain.ErrInvalidInput)
	}

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindSubscription, policy.OpUpdate, nil); err != nil {
			return err
		}
		w, err := tx.Workspaces().GetByID(ctx, workspaceID)
		if err != nil {
			return err
		}
		n, err := tx.Memberships().Count(ctx, workspaceID)
		if err != nil {
			return err
		}
		if seats < n {
			return fmt.Errorf("%w: %d members exceed %d seats", domain.ErrInvalidInput, n, seats)
		}

		before := w.Subscription()
		after := domain.Subscription{WorkspaceID: workspaceID, Plan: plan, Seats: seats}
		if err := tx.Workspaces().UpdateSubscription(ctx, after); err != nil {
			return err
		}
		sub = &after
		if err := s.record(ctx, tx, audit.Entry{
			Entity:      domain.EntitySubscription,
			EntityID:    workspaceID.String(),
			WorkspaceID: &workspaceID,
			Op:          domain.AuditOpUpdate,
			ActorID:     p.UserID,
			Before:      before,
			After:       after,
		}); err != nil {
			return err
		}

		// plan and seats live on the workspace row, so its history moves too
		updated, err := tx.Workspaces().GetByID(ctx, workspaceID)
		if err != nil {
			return err
		}
		return s.record(ctx, tx, audit.Entry{
			Entity:      domain.EntityWorkspace,
			EntityID:    workspaceID.String(),
			WorkspaceID: &workspaceID,
			Op:          domain.AuditOpUpdate,
			ActorID:     p.UserID,
			Before:      w,
			After:       updated,
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
