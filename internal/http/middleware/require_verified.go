package middleware

import (
	"net/http"

	"github.com/tendant/workspace-authz/internal/httputil"
)

// RequireVerified creates middleware that requires a verified email.
// Must be used after Auth middleware.
func RequireVerified() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !p.EmailVerified {
				httputil.JSON(w, http.StatusForbidden, httputil.ErrorResponse{
					Error: "email verification required",
					Code:  "email_not_verified",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
