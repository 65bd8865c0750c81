package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a workspace subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// DefaultSeats is the seat count given to a new workspace.
const DefaultSeats = 5

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Workspace is the tenant boundary. Every membership and resource belongs to
// exactly one workspace and is deleted with it.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Plan      Plan      `json:"plan"`
	Seats     int       `json:"seats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwner reports whether userID owns the workspace.
func (w *Workspace) IsOwner(userID uuid.UUID) bool {
	return w.OwnerID == userID
}

// Subscription returns the plan and seat projection of the workspace.
func (w *Workspace) Subscription() Subscription {
	return Subscription{WorkspaceID: w.ID, Plan: w.Plan, Seats: w.Seats}
}

// Subscription is the plan tier and seat count of a workspace.
type Subscription struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Plan        Plan      `json:"plan"`
	Seats       int       `json:"seats"`
}

// BusinessProfile holds the opaque company details of a workspace.
type BusinessProfile struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	LegalName   string    `json:"legal_name"`
	Website     string    `json:"website"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	UpdatedAt   time.Time `json:"updated_at"`
}
