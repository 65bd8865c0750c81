package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/auth"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

// DefaultInvitationTTL is how long an invitation token stays redeemable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Mailer delivers invitation emails. Delivery is best effort.
type Mailer interface {
	SendInvitationEmail(ctx context.Context, to, workspaceName, acceptURL string) error
}

// InvitationConfig holds invitation settings.
type InvitationConfig struct {
	TTL time.Duration
	// AcceptURL is the page that redeems a token; the token is appended as
	// the "token" query parameter.
	AcceptURL string
}

// InvitationService creates and redeems workspace invitations.
type InvitationService struct {
	base
	config InvitationConfig
	mailer Mailer
}

// NewInvitationService creates a new invitation service. mailer may be nil.
func NewInvitationService(d Deps, config InvitationConfig, mailer Mailer) *InvitationService {
	if config.TTL == 0 {
		config.TTL = DefaultInvitationTTL
	}
	return &InvitationService{base: newBase(d), config: config, mailer: mailer}
}

func invitationEntry(op domain.AuditOp, actor uuid.UUID, before, after *domain.Invitation) audit.Entry {
	e := audit.Entry{Entity: domain.EntityInvitation, Op: op, ActorID: actor}
	inv := after
	if inv == nil {
		inv = before
	}
	e.EntityID = inv.ID.String()
	e.WorkspaceID = ptr(inv.WorkspaceID)
	if before != nil {
		e.Before = before
	}
	if after != nil {
		e.After = after
	}
	return e
}

// CreateInvitation invites email to join the workspace and returns the
// invitation with the raw token. The token is not stored and cannot be
// recovered later.
func (s *InvitationService) CreateInvitation(ctx context.Context, p domain.Principal, workspaceID uuid.UUID, email string, role domain.Role) (inv *domain.Invitation, token string, err error) {
	ctx, span := startSpan(ctx, "workspace.CreateInvitation", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	email, err = auth.ValidateEmail(email)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleMember {
		return nil, "", domain.ErrInvalidRole
	}

	token, err = auth.GenerateToken(auth.InvitationTokenLen)
	if err != nil {
		return nil, "", err
	}

	var workspaceName string
	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindInvitation, policy.OpCreate, nil); err != nil {
			return err
		}
		w, err := tx.Workspaces().GetByID(ctx, workspaceID)
		if err != nil {
			return err
		}
		workspaceName = w.Name

		now := s.now()
		stale, err := tx.Invitations().ExpirePending(ctx, workspaceID, email, now)
		if err != nil {
			return err
		}
		for _, before := range stale {
			after := *before
			after.Status = domain.InvitationStatusExpired
			if err := s.record(ctx, tx, invitationEntry(domain.AuditOpUpdate, p.UserID, before, &after)); err != nil {
				return err
			}
		}

		inv = &domain.Invitation{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			TokenHash:   auth.HashToken(token),
			Email:       email,
			Role:        role,
			Status:      domain.InvitationStatusPending,
			InvitedBy:   p.UserID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.config.TTL),
		}
		if err := tx.Invitations().Create(ctx, inv); err != nil {
			if errors.Is(err, domain.ErrRaceLost) {
				return domain.ErrDuplicatePendingInvitation
			}
			return err
		}
		return s.record(ctx, tx, invitationEntry(domain.AuditOpInsert, p.UserID, nil, inv))
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "invitation created",
		"workspace_id", workspaceID,
		"invitation_id", inv.ID,
		"invited_by", p.UserID,
	)
	s.sendInvitation(ctx, inv.Email, workspaceName, token)
	return inv, token, nil
}

func (s *InvitationService) sendInvitation(ctx context.Context, to, workspaceName, token string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendInvitationEmail(ctx, to, workspaceName, s.acceptURL(token)); err != nil {
		s.logger.WarnContext(ctx, "failed to send invitation email", "error", err)
	}
}

func (s *InvitationService) acceptURL(token string) string {
	base := s.config.AcceptURL
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// AcceptInvitation redeems token for the principal.
//
// Checks run in a fixed order: unknown token, email mismatch, unverified
// email, prior acceptance, expiry, revocation. A principal that is already a
// member gets an idempotent success with AlreadyMember set, including the
// principal who accepted the token earlier.
func (s *InvitationService) AcceptInvitation(ctx context.Context, p domain.Principal, token string) (res *domain.AcceptResult, err error) {
	ctx, span := startSpan(ctx, "workspace.AcceptInvitation")
	defer endSpan(span, &err)

	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	inv, err := s.store.Invitations().GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	if !auth.EmailsEqual(p.Email, inv.Email) {
		return nil, domain.ErrEmailMismatch
	}
	if !p.EmailVerified {
		return nil, domain.ErrEmailNotVerified
	}
	if inv.Status == domain.InvitationStatusAccepted {
		return s.reaccept(ctx, p, inv)
	}
	now := s.now()
	if inv.IsExpired(now) {
		if inv.IsPending() {
			s.expire(ctx, inv)
		}
		return nil, domain.ErrExpired
	}
	if inv.Status == domain.InvitationStatusRevoked {
		return nil, domain.ErrRevoked
	}
	if !inv.IsPending() {
		return nil, domain.ErrAlreadyUsed
	}

	res, err = s.acceptTx(ctx, p, inv, now)
	if errors.Is(err, domain.ErrRaceLost) {
		res, err = s.recoverAccept(ctx, p, inv, now)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "invitation accepted",
		"workspace_id", res.WorkspaceID,
		"invitation_id", inv.ID,
		"user_id", p.UserID,
		"already_member", res.AlreadyMember,
	)
	return res, nil
}

// acceptTx claims the invitation and inserts the membership in one
// transaction. It returns domain.ErrRaceLost when a concurrent request
// claimed the invitation or inserted the membership first.
func (s *InvitationService) acceptTx(ctx context.Context, p domain.Principal, inv *domain.Invitation, now time.Time) (*domain.AcceptResult, error) {
	res := &domain.AcceptResult{WorkspaceID: inv.WorkspaceID, Role: inv.Role}
	err := s.store.WithTx(ctx, func(tx store.Stores) error {
		existing, err := tx.Memberships().Get(ctx, inv.WorkspaceID, p.UserID)
		switch {
		case err == nil:
			res.Role = existing.Role
			res.AlreadyMember = true
			return s.claim(ctx, tx, p, inv, now, true)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if err := checkSeats(ctx, tx, p, inv.WorkspaceID); err != nil {
			return err
		}
		if err := s.claim(ctx, tx, p, inv, now, false); err != nil {
			return err
		}

		m := &domain.Membership{
			WorkspaceID: inv.WorkspaceID,
			UserID:      p.UserID,
			Role:        inv.Role,
			InvitedBy:   ptr(inv.InvitedBy),
			JoinedAt:    now,
		}
		if err := tx.Memberships().Create(ctx, m); err != nil {
			return err
		}
		return s.record(ctx, tx, membershipEntry(domain.AuditOpInsert, p.UserID, nil, m))
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// reaccept answers a redemption of an accepted invitation. The principal
// that accepted it and still holds the membership gets an idempotent
// success; anyone else gets ErrAlreadyUsed.
func (s *InvitationService) reaccept(ctx context.Context, p domain.Principal, inv *domain.Invitation) (*domain.AcceptResult, error) {
	if inv.AcceptedBy == nil || *inv.AcceptedBy != p.UserID {
		return nil, domain.ErrAlreadyUsed
	}
	res := &domain.AcceptResult{WorkspaceID: inv.WorkspaceID, Role: inv.Role, AlreadyMember: true}
	err := s.store.WithTx(ctx, func(tx store.Stores) error {
		m, err := tx.Memberships().Get(ctx, inv.WorkspaceID, p.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAlreadyUsed
		}
		if err != nil {
			return err
		}
		res.Role = m.Role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// recoverAccept resolves a lost race: if the principal ended up a member the
// redemption is an idempotent success, otherwise someone else used the token.
func (s *InvitationService) recoverAccept(ctx context.Context, p domain.Principal, inv *domain.Invitation, now time.Time) (*domain.AcceptResult, error) {
	res := &domain.AcceptResult{WorkspaceID: inv.WorkspaceID, Role: inv.Role}
	err := s.store.WithTx(ctx, func(tx store.Stores) error {
		m, err := tx.Memberships().Get(ctx, inv.WorkspaceID, p.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAlreadyUsed
		}
		if err != nil {
			return err
		}
		res.Role = m.Role
		res.AlreadyMember = true
		return s.claim(ctx, tx, p, inv, now, true)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// claim moves the invitation from pending to accepted. With lenient set a
// lost race is ignored because the outcome is already decided.
func (s *InvitationService) claim(ctx context.Context, tx store.Stores, p domain.Principal, inv *domain.Invitation, now time.Time, lenient bool) error {
	after := *inv
	after.Status = domain.InvitationStatusAccepted
	after.AcceptedAt = ptr(now)
	after.AcceptedBy = ptr(p.UserID)

	if err := tx.Invitations().Transition(ctx, &after, domain.InvitationStatusPending); err != nil {
		if lenient && errors.Is(err, domain.ErrRaceLost) {
			return nil
		}
		return err
	}
	return s.record(ctx, tx, invitationEntry(domain.AuditOpUpdate, p.UserID, inv, &after))
}

// expire flips a past-due pending invitation to expired. Failures are logged;
// the sweeper will retry.
func (s *InvitationService) expire(ctx context.Context, inv *domain.Invitation) {
	err := s.store.WithTx(ctx, func(tx store.Stores) error {
		after := *inv
		after.Status = domain.InvitationStatusExpired
		if err := tx.Invitations().Transition(ctx, &after, domain.InvitationStatusPending); err != nil {
			return err
		}
		return s.record(ctx, tx, invitationEntry(domain.AuditOpUpdate, uuid.Nil, inv, &after))
	})
	if err != nil && !errors.Is(err, domain.ErrRaceLost) {
		s.logger.WarnContext(ctx, "failed to expire invitation", "invitation_id", inv.ID, "error", err)
	}
}

// RevokeInvitation withdraws a pending invitation. Owner only.
func (s *InvitationService) RevokeInvitation(ctx context.Context, p domain.Principal, workspaceID, invitationID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "workspace.RevokeInvitation", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	return s.store.WithTx(ctx, func(tx store.Stores) error {
		if _, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindInvitation, policy.OpDelete, nil); err != nil {
			return err
		}
		inv, err := tx.Invitations().GetByID(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.WorkspaceID != workspaceID {
			return domain.ErrNotFound
		}
		switch inv.Status {
		case domain.InvitationStatusPending:
		case domain.InvitationStatusRevoked:
			return domain.ErrRevoked
		case domain.InvitationStatusExpired:
			return domain.ErrExpired
		default:
			return domain.ErrAlreadyUsed
		}

		after := *inv
		after.Status = domain.InvitationStatusRevoked
		if err := tx.Invitations().Transition(ctx, &after, domain.InvitationStatusPending); err != nil {
			if errors.Is(err, domain.ErrRaceLost) {
				return domain.ErrAlreadyUsed
			}
			return err
		}
		return s.record(ctx, tx, invitationEntry(domain.AuditOpUpdate, p.UserID, inv, &after))
	})
}

// ListInvitations returns every invitation of a workspace. Owner only; anyone
// else gets an empty list.
func (s *InvitationService) ListInvitations(ctx context.Context, p domain.Principal, workspaceID uuid.UUID) (out []*domain.Invitation, err error) {
	ctx, span := startSpan(ctx, "workspace.ListInvitations", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if _, err := evaluator(s.store).Authorize(ctx, p, workspaceID, policy.KindInvitation, policy.OpRead, nil); err != nil {
		if listDenied(err) {
			return []*domain.Invitation{}, nil
		}
		return nil, err
	}
	out, err = s.store.Invitations().ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.Invitation{}
	}
	return out, nil
}

// ExpireStale marks every past-due pending invitation as expired and returns
// how many were changed.
func (s *InvitationService) ExpireStale(ctx context.Context) (n int, err error) {
	ctx, span := startSpan(ctx, "workspace.ExpireStale")
	defer endSpan(span, &err)

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		stale, err := tx.Invitations().ExpireStale(ctx, s.now())
		if err != nil {
			return err
		}
		for _, before := range stale {
			after := *before
			after.Status = domain.InvitationStatusExpired
			if err := s.record(ctx, tx, invitationEntry(domain.AuditOpUpdate, uuid.Nil, before, &after)); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("expire stale invitations: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired stale invitations", "count", n)
	}
	return n, nil
}
