package auth

import (
	"errors"
	"strings"
	"time"
)

// Role represents an authorisation tier carried in token claims.
// Policy over roles is owned by the authorization layer, not here.
type Role string

const (
	// RoleStudent is the default role for self-registered accounts.
	RoleStudent Role = "student"

	// RoleAdmin is granted by seeding or by an existing admin, never
	// by self-registration.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles an account may hold.
var ValidRoles = []Role{RoleStudent, RoleAdmin}

// IsValidRole returns true if the role is a known account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an email address. All lookups
// and uniqueness checks operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// User represents a persisted account principal.
//
// Accounts are created at registration, mutated on password or role
// change, and deactivated rather than deleted.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialised
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	MatricNumber string     `json:"matric_number,omitempty"`
	Level        string     `json:"level,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RefreshToken represents one issued refresh token.
//
// The signed token itself is never stored; records are keyed by the
// SHA-256 hash of the token string. Revoked is monotonic: it only
// ever transitions false to true. Records are kept after revocation
// for theft forensics and removed only by the expiry sweep.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Family    string    `json:"family"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is the transient result of login, registration, or
// rotation. It is returned to the client and never persisted.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token TTL in seconds
}

// Sentinel errors for auth operations.
var (
	// ErrInvalidCredentials deliberately does not distinguish between
	// an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("account is deactivated")
	ErrEmailExists  = errors.New("an account with this email already exists")
	ErrWeakPassword = errors.New("password does not meet requirements")

	ErrTokenInvalid    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token has expired")
	ErrWrongTokenClass = errors.New("wrong token class")

	// ErrTokenReuse is returned when a consumed or unknown refresh
	// token is presented. By the time the caller sees it, the token's
	// whole family has been revoked.
	ErrTokenReuse = errors.New("refresh token reuse detected")

	// ErrDuplicateToken indicates an insert collided with an existing
	// token record. Token values are 256-bit random, so this is a
	// hard integrity violation, never an expected outcome.
	ErrDuplicateToken = errors.New("refresh token already exists")
)
