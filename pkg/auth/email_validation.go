package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/workspace-authz/pkg/domain"
	"golang.org/x/text/cases"
)

// Email validation regex (stricter than RFC 5322 for practical use)
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const maxEmailLength = 254 // RFC 5321

var folder = cases.Fold()

// ValidateEmail checks format and length and returns the normalized address.
// Display names ("Bob <bob@example.com>") are rejected; invitations target a
// bare address.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("%w: email address is required", domain.ErrInvalidEmail)
	}
	if len(normalized) > maxEmailLength {
		return "", fmt.Errorf("%w: too long (max %d characters)", domain.ErrInvalidEmail, maxEmailLength)
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEmail, email)
	}
	if !emailRegex.MatchString(addr.Address) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEmail, email)
	}
	return normalized, nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailsEqual compares two addresses case-insensitively using Unicode case
// folding, so "Bob@Example.com" and "bob@example.com" are the same mailbox.
func EmailsEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return folder.String(a) == folder.String(b)
}

// LocalPart returns the part of the address before '@'.
func LocalPart(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return local
}
