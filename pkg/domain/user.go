package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the local record of an identity-provider account.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}
