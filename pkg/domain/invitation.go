package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus represents the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending    InvitationStatus = "pending"
	InvitationStatusProcessing InvitationStatus = "processing"
	InvitationStatusAccepted   InvitationStatus = "accepted"
	InvitationStatusExpired    InvitationStatus = "expired"
	InvitationStatusRevoked    InvitationStatus = "revoked"
)

// Invitation offers membership in a workspace to an email address.
// Only the hash of the token is stored.
type Invitation struct {
	ID          uuid.UUID        `json:"id"`
	WorkspaceID uuid.UUID        `json:"workspace_id"`
	TokenHash   string           `json:"-"`
	Email       string           `json:"email"`
	Role        Role             `json:"role"`
	Status      InvitationStatus `json:"status"`
	InvitedBy   uuid.UUID        `json:"invited_by"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
	AcceptedBy  *uuid.UUID       `json:"accepted_by,omitempty"`
}

// IsPending returns true if the invitation has not been used, revoked or expired.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}

// IsExpired reports whether the invitation is past its expiry at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == InvitationStatusExpired || now.After(i.ExpiresAt)
}

// AcceptResult is returned by a successful invitation redemption.
type AcceptResult struct {
	WorkspaceID   uuid.UUID `json:"workspace_id"`
	Role          Role      `json:"role"`
	AlreadyMember bool      `json:"already_member"`
}
