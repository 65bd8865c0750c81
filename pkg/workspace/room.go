package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/audit"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

// RoomService manages direct messaging rooms between workspace members.
type RoomService struct {
	base
}

// NewRoomService creates a new room service.
func NewRoomService(d Deps) *RoomService {
	return &RoomService{base: newBase(d)}
}

// GetOrCreateDirectRoom returns the room between the principal and peer,
// creating it on first use. Both users must be members of the workspace.
// Concurrent callers for the same pair all get the same room.
func (s *RoomService) GetOrCreateDirectRoom(ctx context.Context, p domain.Principal, workspaceID, peerID uuid.UUID) (room *domain.DirectRoom, created bool, err error) {
	ctx, span := startSpan(ctx, "workspace.GetOrCreateDirectRoom", workspaceAttr(workspaceID))
	defer endSpan(span, &err)

	if peerID == uuid.Nil || peerID == p.UserID {
		return nil, false, fmt.Errorf("%w: peer must be another member", domain.ErrInvalidInput)
	}
	a, b := domain.CanonicalPair(p.UserID, peerID)

	err = s.store.WithTx(ctx, func(tx store.Stores) error {
		f, err := evaluator(tx).Authorize(ctx, p, workspaceID, policy.KindResource, policy.OpCreate, nil)
		if err != nil {
			return err
		}
		if !f.IsMember() {
			return domain.ErrUnauthorized
		}
		if _, err := tx.Memberships().Get(ctx, workspaceID, peerID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: peer is not a member of this workspace", domain.ErrInvalidInput)
			}
			return err
		}

		existing, err := tx.Rooms().GetByPair(ctx, workspaceID, a, b)
		if err == nil {
			room = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		room = &domain.DirectRoom{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			UserA:       a,
			UserB:       b,
			CreatedBy:   p.UserID,
			CreatedAt:   s.now(),
		}
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		created = true
		return s.record(ctx, tx, audit.Entry{
			Entity:      domain.EntityRoom,
			EntityID:    room.ID.String(),
			WorkspaceID: &workspaceID,
			Op:          domain.AuditOpInsert,
			ActorID:     p.UserID,
			After:       room,
		})
	})
	if errors.Is(err, domain.ErrRaceLost) {
		existing, gerr := s.store.Rooms().GetByPair(ctx, workspaceID, a, b)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}
