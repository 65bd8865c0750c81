// Package httputil holds the JSON response helpers shared by the handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/workspace-authz/pkg/domain"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes an error body without a domain code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainError maps err to a status code and writes it. Faults are logged
// and reported without detail.
func DomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
		}
		JSON(w, status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}
	JSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code string) int {
	switch code {
	case domain.ErrUnauthorized.Code:
		return http.StatusForbidden
	case domain.ErrEmailNotVerified.Code, domain.ErrEmailMismatch.Code:
		return http.StatusForbidden
	case domain.ErrNotFound.Code, domain.ErrInvalidToken.Code:
		return http.StatusNotFound
	case domain.ErrDuplicateMembership.Code,
		domain.ErrDuplicatePendingInvitation.Code,
		domain.ErrCannotRemoveOwner.Code,
		domain.ErrAlreadyUsed.Code,
		domain.ErrRaceLost.Code:
		return http.StatusConflict
	case domain.ErrExpired.Code, domain.ErrRevoked.Code:
		return http.StatusGone
	case domain.ErrInvalidRole.Code, domain.ErrInvalidEmail.Code, domain.ErrInvalidInput.Code:
		return http.StatusUnprocessableEntity
	case domain.ErrSeatLimitReached.Code:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// DecodeJSON decodes the request body into v. It writes the error reply
// itself and reports whether decoding succeeded.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
