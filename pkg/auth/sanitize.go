package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/workspace-authz/pkg/domain"
)

// CleanText trims whitespace and strips control characters from a
// user-supplied label such as a workspace name or task title.
func CleanText(s string) string {
	return strings.TrimSpace(removeControlChars(s))
}

// ValidateLength checks that value has between min and max characters.
// A zero bound is not enforced.
func ValidateLength(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if min > 0 && length < min {
		return fmt.Errorf("%w: %s must be at least %d characters long", domain.ErrInvalidInput, field, min)
	}

	if max > 0 && length > max {
		return fmt.Errorf("%w: %s must be at most %d characters long", domain.ErrInvalidInput, field, max)
	}

	return nil
}

// removeControlChars removes control characters except newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
