package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	// Server
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	// Storage
	StoreDriver string   `env:"STORE_DRIVER" envDefault:"postgres"`
	DB          DBConfig `envPrefix:"DB_"`

	// Identity provider tokens
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// Invitations
	AppBaseURL              string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	InvitationTTL           time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	InvitationSweepInterval time.Duration `env:"INVITATION_SWEEP_INTERVAL" envDefault:"10m"`

	SMTP            SMTPConfig            `envPrefix:"SMTP_"`
	RateLimit       RateLimitConfig       `envPrefix:"RATE_LIMIT_"`
	SecurityHeaders SecurityHeadersConfig `envPrefix:"SECURITY_HEADERS_"`
	OTel            OTelConfig            `envPrefix:"OTEL_"`

	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"25432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"workspace_authz"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// SMTPConfig holds outgoing mail settings. Mail is disabled without a host.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"Workspace"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// Invitation create and accept
	InviteRequestsPerWindow int `env:"INVITE_REQUESTS" envDefault:"10"`
	InviteWindowMinutes     int `env:"INVITE_WINDOW_MINUTES" envDefault:"1"`

	// Everything else under /v1
	APIRequestsPerMinute int `env:"API_REQUESTS_PER_MINUTE" envDefault:"120"`
	APIWindowMinutes     int `env:"API_WINDOW_MINUTES" envDefault:"1"`
}

// SecurityHeadersConfig holds response security header values.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"ENABLED" envDefault:"true"`
	CSP                string `env:"CSP" envDefault:"default-src 'none'; frame-ancestors 'none'"`
	HSTSMaxAge         int    `env:"HSTS_MAX_AGE" envDefault:"31536000"`
	FrameOptions       string `env:"FRAME_OPTIONS" envDefault:"DENY"`
	ContentTypeOptions string `env:"CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	ReferrerPolicy     string `env:"REFERRER_POLICY" envDefault:"no-referrer"`
}

// OTelConfig holds OpenTelemetry export settings. Export is disabled without
// an endpoint.
type OTelConfig struct {
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT"`
	Headers     string `env:"EXPORTER_OTLP_HEADERS"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"workspace-authz"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the struct tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.InvitationTTL <= 0 {
		return errors.New("INVITATION_TTL must be positive")
	}
	if c.HasSMTP() && c.SMTP.From == "" {
		return errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasSMTP returns true if outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTP.Host != ""
}

// HasOTel returns true if OTLP export is configured.
func (c *Config) HasOTel() bool {
	return c.OTel.Endpoint != ""
}

// AcceptURL is the frontend page that redeems invitation tokens.
func (c *Config) AcceptURL() string {
	return c.AppBaseURL + "/invitations/accept"
}
