package domain

import "errors"

// Error is a domain error carrying a stable machine-readable code.
// Callers match sentinels with errors.Is and read the code with CodeOf.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Authorization errors
var (
	ErrUnauthorized = newError("unauthorized", "not authorized to perform this operation")
	ErrNotFound     = newError("not_found", "not found")
)

// Membership errors
var (
	ErrDuplicateMembership = newError("duplicate_membership", "user is already a member of this workspace")
	ErrCannotRemoveOwner   = newError("cannot_remove_owner", "the workspace owner cannot be removed")
	ErrSeatLimitReached    = newError("seat_limit_reached", "workspace seat limit reached")
	ErrInvalidRole         = newError("invalid_role", "invalid role")
)

// Invitation errors
var (
	ErrInvalidToken               = newError("invalid_token", "invalid invitation token")
	ErrExpired                    = newError("expired", "invitation has expired")
	ErrAlreadyUsed                = newError("already_used", "invitation has already been used")
	ErrRevoked                    = newError("revoked", "invitation has been revoked")
	ErrEmailMismatch              = newError("email_mismatch", "authenticated email does not match invitation")
	ErrEmailNotVerified           = newError("email_not_verified", "email not verified")
	ErrDuplicatePendingInvitation = newError("duplicate_pending_invitation", "a pending invitation already exists for this email")
)

// Storage errors
var (
	// ErrRaceLost reports that a uniqueness constraint rejected a write because a
	// concurrent writer committed the same key first.
	ErrRaceLost = newError("race_lost", "a concurrent request already created this record")
)

// Validation errors
var (
	ErrInvalidEmail = newError("invalid_email", "invalid email address")
	ErrInvalidInput = newError("invalid_input", "invalid input")
)

// CodeOf returns the code of the first domain error in err's chain, or "internal".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}
