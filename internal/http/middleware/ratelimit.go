package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/workspace-authz/internal/config"
	"github.com/tendant/workspace-authz/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimiters holds the limiter for each endpoint group.
type RateLimiters struct {
	// Invite guards invitation creation and redemption, the endpoints that
	// send mail or test tokens.
	Invite func(http.Handler) http.Handler
	API    func(http.Handler) http.Handler
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.WarnContext(r.Context(), "rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) RateLimiters {
	if !cfg.Enabled {
		return RateLimiters{Invite: NoRateLimit(), API: NoRateLimit()}
	}

	return RateLimiters{
		Invite: RateLimit(RateLimitConfig{
			Requests: cfg.InviteRequestsPerWindow,
			Window:   time.Duration(cfg.InviteWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		API: RateLimit(RateLimitConfig{
			Requests: cfg.APIRequestsPerMinute,
			Window:   time.Duration(cfg.APIWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
	}
}
