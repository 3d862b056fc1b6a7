package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// issuer is stamped on every token and required on parse.
	issuer = "couchcontrol"

	defaultTTL = time.Hour
)

// CustomClaims are the registered JWT claims plus the caller's Role. The
// subject names the client, e.g. "living-room-tablet".
type CustomClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateAccessToken signs an HS256 token for subject with the given role.
// A ttlMinutes of zero or less means one hour.
//
// Returns ErrTokenInvalid for an empty subject and ErrInvalidRole for a role
// outside ValidRoles.
func GenerateAccessToken(subject string, role Role, secret string, ttlMinutes int) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	ttl := time.Duration(ttlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, algorithm, issuer and expiry, then checks
// that the token names a subject and a known role. Every failure wraps
// ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if err := claims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}

// Validate is called by the jwt parser after the registered claims pass.
func (c CustomClaims) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("missing subject")
	}
	if !IsValidRole(c.Role) {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
