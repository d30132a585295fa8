package utils

import (
	"errors"
	"fmt"
	"time"

	"taskboard/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification:
// malformed, wrong signature, wrong algorithm or expired.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTokenLifetime is how long an issued token stays valid.
const DefaultTokenLifetime = 2 * time.Hour

// issuerZone is the zone issuance times are expressed in. The expiry instant
// is issuance plus the lifetime and does not depend on the host's zone.
var issuerZone = time.FixedZone("UTC-3", -3*60*60)

// JWTClaims custom claims for JWT
type JWTClaims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTUtil issues and verifies HS256 tokens with a process-wide secret
type JWTUtil struct {
	secretKey []byte
	lifetime  time.Duration
	now       func() time.Time
}

// JWTOption configures a JWTUtil.
type JWTOption func(*JWTUtil)

// WithClock overrides the clock used for issuance and expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(ju *JWTUtil) {
		ju.now = now
	}
}

// NewJWTUtil creates a new JWTUtil. A non-positive lifetime falls back to DefaultTokenLifetime.
func NewJWTUtil(secretKey string, lifetime time.Duration, opts ...JWTOption) *JWTUtil {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	ju := &JWTUtil{
		secretKey: []byte(secretKey),
		lifetime:  lifetime,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ju)
	}
	return ju
}

// GenerateToken signs a token for the given account
func (ju *JWTUtil) GenerateToken(user *model.User) (string, error) {
	if user == nil || user.Username == "" {
		return "", errors.New("cannot issue token without a username")
	}

	issuedAt := ju.now().In(issuerZone)
	claims := &JWTClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ju.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ju.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies signature and expiry and returns the embedded claims.
// Every failure wraps ErrInvalidToken; the parser error stays in the chain.
func (ju *JWTUtil) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ju.secretKey, nil
	}, jwt.WithTimeFunc(ju.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username claim", ErrInvalidToken)
	}
	return claims, nil
}
