package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditOp is the kind of mutation captured by an audit record.
type AuditOp string

const (
	AuditOpInsert AuditOp = "insert"
	AuditOpUpdate AuditOp = "update"
	AuditOpDelete AuditOp = "delete"
)

// Audited entity names
const (
	EntityWorkspace       = "workspace"
	EntityMembership      = "membership"
	EntityInvitation      = "invitation"
	EntitySubscription    = "subscription"
	EntityBusinessProfile = "business_profile"
	EntityTask            = "task"
	EntityRoom            = "room"
)

// AuditRecord is an immutable before/after snapshot of one mutation.
type AuditRecord struct {
	ID            uuid.UUID       `json:"id"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entity_id"`
	WorkspaceID   *uuid.UUID      `json:"workspace_id,omitempty"`
	Op            AuditOp         `json:"op"`
	ActorID       uuid.UUID       `json:"actor_id"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	At            time.Time       `json:"at"`
}
