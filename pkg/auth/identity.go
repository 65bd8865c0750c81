package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// DefaultAccessTokenTTL is the lifetime of tokens minted by Issue.
const DefaultAccessTokenTTL = 15 * time.Minute

// ErrInvalidAccessToken is returned for any bearer token that fails verification.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessTokenClaims are the claims the identity provider puts in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified,omitempty"`
	Capabilities  []string `json:"caps,omitempty"`
}

// IdentityConfig holds the shared secret and expected issuer of access tokens.
type IdentityConfig struct {
	JWTSecret []byte
	// Issuer is checked when non-empty.
	Issuer string
	TTL    time.Duration
}

// Identity verifies access tokens issued by the identity provider and turns
// them into principals. It can also mint tokens for development and tests.
type Identity struct {
	config IdentityConfig
}

// NewIdentity creates an identity verifier.
func NewIdentity(config IdentityConfig) *Identity {
	if config.TTL == 0 {
		config.TTL = DefaultAccessTokenTTL
	}
	return &Identity{config: config}
}

// Verify validates an access token and returns the principal it names.
func (s *Identity) Verify(tokenString string) (domain.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAccessToken
		}
		return s.config.JWTSecret, nil
	}, opts...)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return domain.Principal{}, ErrInvalidAccessToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidAccessToken)
	}

	p := domain.Principal{
		UserID:        userID,
		Email:         NormalizeEmail(claims.Email),
		EmailVerified: claims.EmailVerified,
	}
	for _, c := range claims.Capabilities {
		p.Capabilities = append(p.Capabilities, domain.Capability(c))
	}
	return p, nil
}

// Issue signs an access token for p.
func (s *Identity) Issue(p domain.Principal) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
		},
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
	}
	for _, c := range p.Capabilities {
		claims.Capabilities = append(claims.Capabilities, string(c))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.JWTSecret)
}
