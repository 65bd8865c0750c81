package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// RoomsRepository handles direct room persistence.
type RoomsRepository struct {
	q Querier
}

// NewRoomsRepository creates a new rooms repository.
func NewRoomsRepository(q Querier) *RoomsRepository {
	return &RoomsRepository{q: q}
}

// Create creates a direct room. The unique (workspace_id, user_a, user_b)
// constraint turns a concurrent duplicate into domain.ErrRaceLost.
func (r *RoomsRepository) Create(ctx context.Context, room *domain.DirectRoom) error {
	query := `
		INSERT INTO direct_rooms (id, workspace_id, user_a, user_b, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		room.ID, room.WorkspaceID, room.UserA, room.UserB, room.CreatedBy, room.CreatedAt,
	)
	return translateError(err)
}

// GetByPair retrieves the room for a canonical user pair.
func (r *RoomsRepository) GetByPair(ctx context.Context, workspaceID, userA, userB uuid.UUID) (*domain.DirectRoom, error) {
	query := `
		SELECT id, workspace_id, user_a, user_b, created_by, created_at
		FROM direct_rooms
		WHERE workspace_id = $1 AND user_a = $2 AND user_b = $3
	`
	var room domain.DirectRoom
	err := r.q.QueryRowContext(ctx, query, workspaceID, userA, userB).Scan(
		&room.ID, &room.WorkspaceID, &room.UserA, &room.UserB, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &room, nil
}
