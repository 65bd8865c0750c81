package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// InvitationsRepository handles invitation persistence.
type InvitationsRepository struct {
	q Querier
}

// NewInvitationsRepository creates a new invitations repository.
func NewInvitationsRepository(q Querier) *InvitationsRepository {
	return &InvitationsRepository{q: q}
}

const invitationColumns = `id, workspace_id, token_hash, email, role, status, invited_by,
	created_at, expires_at, accepted_at, accepted_by`

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.WorkspaceID,
		&inv.TokenHash,
		&inv.Email,
		&inv.Role,
		&inv.Status,
		&inv.InvitedBy,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.AcceptedAt,
		&inv.AcceptedBy,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &inv, nil
}

func (r *InvitationsRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Invitation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var invitations []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Create creates a new invitation. The partial unique index on pending
// (workspace_id, lower(email)) rows turns a concurrent duplicate into
// domain.ErrRaceLost.
func (r *InvitationsRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (id, workspace_id, token_hash, email, role, status, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		inv.ID,
		inv.WorkspaceID,
		inv.TokenHash,
		inv.Email,
		inv.Role,
		inv.Status,
		inv.InvitedBy,
		inv.CreatedAt,
		inv.ExpiresAt,
	)
	return translateError(err)
}

// GetByID retrieves an invitation by ID.
func (r *InvitationsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return scanInvitation(r.q.QueryRowContext(ctx, query, id))
}

// GetByTokenHash retrieves an invitation by the hash of its token.
func (r *InvitationsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token_hash = $1`
	return scanInvitation(r.q.QueryRowContext(ctx, query, tokenHash))
}

// ListByWorkspace retrieves every invitation of a workspace, oldest first.
func (r *InvitationsRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE workspace_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, workspaceID)
}

// CountPendingForEmail counts unexpired pending invitations for an email
// across all workspaces.
func (r *InvitationsRepository) CountPendingForEmail(ctx context.Context, email string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM invitations
		WHERE lower(email) = lower($1) AND status = 'pending' AND expires_at >= $2
	`
	var n int
	err := r.q.QueryRowContext(ctx, query, email, now).Scan(&n)
	return n, err
}

// ExpirePending marks past-due pending invitations for (workspace, email) as
// expired and returns them as they were before the update.
func (r *InvitationsRepository) ExpirePending(ctx context.Context, workspaceID uuid.UUID, email string, now time.Time) ([]*domain.Invitation, error) {
	query := `
		UPDATE invitations
		SET status = 'expired'
		WHERE workspace_id = $1 AND lower(email) = lower($2) AND status = 'pending' AND expires_at < $3
		RETURNING ` + invitationColumns
	return r.expired(r.list(ctx, query, workspaceID, email, now))
}

// ExpireStale marks every past-due pending invitation as expired.
func (r *InvitationsRepository) ExpireStale(ctx context.Context, now time.Time) ([]*domain.Invitation, error) {
	query := `
		UPDATE invitations
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1
		RETURNING ` + invitationColumns
	return r.expired(r.list(ctx, query, now))
}

// expired rewinds RETURNING rows to their pre-update status.
func (r *InvitationsRepository) expired(invitations []*domain.Invitation, err error) ([]*domain.Invitation, error) {
	if err != nil {
		return nil, err
	}
	for _, inv := range invitations {
		inv.Status = domain.InvitationStatusPending
	}
	return invitations, nil
}

// Transition moves an invitation out of status from. Zero affected rows on an
// existing invitation means another request moved it first.
func (r *InvitationsRepository) Transition(ctx context.Context, inv *domain.Invitation, from domain.InvitationStatus) error {
	query := `
		UPDATE invitations
		SET status = $1, accepted_at = $2, accepted_by = $3
		WHERE id = $4 AND status = $5
	`
	result, err := r.q.ExecContext(ctx, query, inv.Status, inv.AcceptedAt, inv.AcceptedBy, inv.ID, from)
	if err != nil {
		return translateError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, inv.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrRaceLost
}
