package domain

import "github.com/google/uuid"

// Capability is an elevated permission granted explicitly by the identity
// provider. Capabilities are carried on the Principal and checked at the call
// site that needs them.
type Capability string

const (
	// CapabilityAuditRead allows reading the audit trail without owning a workspace.
	CapabilityAuditRead Capability = "audit:read"
	// CapabilityBypassLimits allows exceeding workspace seat limits.
	CapabilityBypassLimits Capability = "limits:bypass"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	Capabilities  []Capability
}

// Has reports whether the principal holds the capability.
func (p Principal) Has(c Capability) bool {
	for _, held := range p.Capabilities {
		if held == c {
			return true
		}
	}
	return false
}
