package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Hata214/BackEnd/internal/models"
)

// RenewalThreshold is the remaining lifetime below which a verified token is reissued.
const RenewalThreshold = 5 * time.Minute

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenLifetime returns the token lifetime for role. Unknown roles get the
// shortest lifetime.
func TokenLifetime(role models.Role) time.Duration {
	switch role {
	case models.RoleAdmin, models.RoleUser:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Claims are the JWT claims carried by every bearer token.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token plus the instants it was stamped with.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager issues and verifies signed JWTs for authenticated accounts.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenClock overrides the clock used for issuance and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenManager) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenManager creates a manager with the provided secret and issuer.
func NewTokenManager(secret, issuer string, opts ...TokenOption) *TokenManager {
	t := &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token for subject with an expiry derived from role.
func (t *TokenManager) Issue(subject string, role models.Role) (IssuedToken, error) {
	now := t.now().Truncate(time.Second)
	expires := now.Add(TokenLifetime(role))
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: expires}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Errors wrap one of ErrTokenMalformed, ErrTokenSignature or ErrTokenExpired.
func (t *TokenManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %w", ErrTokenSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenMalformed, claims.Role)
	}
	return claims, nil
}

// NeedsRenewal reports whether claims expire within RenewalThreshold of now.
func (t *TokenManager) NeedsRenewal(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(t.now()) < RenewalThreshold
}

// Now returns the manager's current instant.
func (t *TokenManager) Now() time.Time {
	return t.now()
}
