package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// ProfilesRepository handles business profile persistence.
type ProfilesRepository struct {
	q Querier
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(q Querier) *ProfilesRepository {
	return &ProfilesRepository{q: q}
}

// Get retrieves the business profile of a workspace.
func (r *ProfilesRepository) Get(ctx context.Context, workspaceID uuid.UUID) (*domain.BusinessProfile, error) {
	query := `
		SELECT workspace_id, legal_name, website, phone, address, updated_at
		FROM business_profiles
		WHERE workspace_id = $1
	`
	var p domain.BusinessProfile
	err := r.q.QueryRowContext(ctx, query, workspaceID).Scan(
		&p.WorkspaceID, &p.LegalName, &p.Website, &p.Phone, &p.Address, &p.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

// Upsert writes the business profile of a workspace.
func (r *ProfilesRepository) Upsert(ctx context.Context, p *domain.BusinessProfile) error {
	query := `
		INSERT INTO business_profiles (workspace_id, legal_name, website, phone, address, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id) DO UPDATE
		SET legal_name = EXCLUDED.legal_name,
			website = EXCLUDED.website,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		p.WorkspaceID, p.LegalName, p.Website, p.Phone, p.Address, p.UpdatedAt,
	)
	return translateError(err)
}
