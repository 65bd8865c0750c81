package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/store"
)

// ProvisionResult describes what signup provisioning did.
type ProvisionResult struct {
	User *domain.User `json:"user"`
	// Workspace is the personal workspace, nil when it was not created.
	Workspace *domain.Workspace `json:"workspace,omitempty"`
	// PendingInvitations is the number of outstanding invitations for the
	// user's email at signup time.
	PendingInvitations int  `json:"pending_invitations"`
	Created            bool `json:"created"`
}

// SignupService provisions the local records of a newly signed-up user.
type SignupService struct {
	base
}

// NewSignupService creates a new signup service.
func NewSignupService(d Deps) *SignupService {
	return &SignupService{base: newBase(d)}
}

// Provision runs the signup workflow in one transaction: create the user,
// look for pending invitations to the user's email, create a personal
// workspace with its owner membership only when there are none, then
// initialize its subscription. Calling it again for an existing user is a
// no-op.
func (s *SignupService) Provision(ctx context.Context, p domain.Principal) (res *ProvisionResult, err error) {
	ctx, span := startSpan(ctx, "workspace.Provision")
	defer endSpan(span, &err)

	email, err := auth.ValidateEmail(p.Email)
	if err != nil {
		return nil, err
	}

	res = &ProvisionResult{}
	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		existing, err := tx.Users().GetByID(ctx, p.UserID)
		if err == nil {
			res.User = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := s.now()
		u := &domain.User{
			ID:            p.UserID,
			Email:         email,
			EmailVerified: p.EmailVerified,
			CreatedAt:     now,
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		res.User = u
		res.Created = true

		res.PendingInvitations, err = tx.Invitations().CountPendingForEmail(ctx, email, now)
		if err != nil {
			return err
		}
		if res.PendingInvitations > 0 {
			return nil
		}

		res.Workspace, err = s.createWorkspaceTx(ctx, tx, u.ID, personalWorkspaceName(email))
		return err
	})
	if errors.Is(err, domain.ErrRaceLost) {
		// a concurrent signup for the same user won
		u, gerr := s.store.Users().GetByID(ctx, p.UserID)
		if gerr != nil {
			return nil, err
		}
		return &ProvisionResult{User: u}, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Created {
		s.logger.InfoContext(ctx, "user provisioned",
			"user_id", res.User.ID,
			"personal_workspace", res.Workspace != nil,
			"pending_invitations", res.PendingInvitations,
		)
	}
	return res, nil
}

func personalWorkspaceName(email string) string {
	if local := auth.LocalPart(email); local != "" {
		return local + "'s Workspace"
	}
	return "Personal Workspace"
}
