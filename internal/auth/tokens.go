package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token class discriminators. Every token carries one, so an access
// token can never be replayed against a refresh endpoint or vice versa.
const (
	tokenClassAccess  = "access"
	tokenClassRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// AccessClaims are the claims encoded in an access token.
// Access tokens are stateless: validated by signature and expiry only,
// with no database hit.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	TokenClass string `json:"type"`
}

// RefreshClaims are the claims encoded in a refresh token.
// The family identifier scopes theft revocation; the registered ID
// (jti) makes every issued token value unique.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenClass string `json:"type"`
	Family     string `json:"family"`
}

// TokenCodec creates and verifies signed access and refresh tokens.
//
// The two token classes are signed with independent secrets, so
// compromise of one class cannot forge the other. The codec is
// immutable after construction and safe for concurrent use.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenCodec creates a codec with the given secrets and TTLs.
// Zero TTLs fall back to the defaults (15 minutes / 7 days).
func NewTokenCodec(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("access and refresh secrets must be distinct")
	}
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &TokenCodec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// EncodeAccess creates a signed access token for a user.
func (c *TokenCodec) EncodeAccess(user *User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			ID:        uuid.NewString(),
		},
		Email:      user.Email,
		Role:       user.Role,
		TokenClass: tokenClassAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.accessSecret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// DecodeAccess verifies an access token's signature, expiry, and
// class, returning its claims.
func (c *TokenCodec) DecodeAccess(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(tokenString, &claims, c.accessSecret); err != nil {
		return nil, err
	}
	if claims.TokenClass != tokenClassAccess {
		return nil, fmt.Errorf("%w: expected access token", ErrWrongTokenClass)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return &claims, nil
}

// EncodeRefresh creates a signed refresh token for a user.
//
// An empty family starts a new one — the login path; every login gets
// its own family, so a user holds one independent family per device.
// A non-empty family is reused — the rotation path. Each call embeds
// a fresh unique token ID, so rotation always yields a new value.
func (c *TokenCodec) EncodeRefresh(userID, family string) (token, familyOut string, expiresAt time.Time, err error) {
	if family == "" {
		family = uuid.NewString()
	}

	now := time.Now()
	expiresAt = now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		TokenClass: tokenClassRefresh,
		Family:     family,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, family, expiresAt, nil
}

// DecodeRefresh verifies a refresh token's signature, expiry, and
// class, returning its claims.
func (c *TokenCodec) DecodeRefresh(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(tokenString, &claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenClass != tokenClassRefresh {
		return nil, fmt.Errorf("%w: expected refresh token", ErrWrongTokenClass)
	}
	if claims.Subject == "" || claims.Family == "" {
		return nil, fmt.Errorf("%w: missing subject or family", ErrTokenInvalid)
	}
	return &claims, nil
}

// parse verifies signature and registered claims, mapping jwt errors
// onto the package sentinels.
func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
