package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/iesaconnect/campus-core/internal/audit"
	"github.com/iesaconnect/campus-core/internal/infrastructure/logging"
)

// Service orchestrates the credential and token flows: registration,
// login, refresh rotation, logout, and password change.
//
// Refresh rotation is single-use: each refresh token works exactly
// once, and presenting a spent or unknown token revokes its entire
// family. The store, not this service, decides races — Consume is a
// conditional write, so two concurrent refreshes of the same token
// produce exactly one winner with no window between read and revoke.
type Service struct {
	users   UserRepository
	tokens  TokenRepository
	hasher  *Hasher
	codec   *TokenCodec
	auditor audit.Recorder
	logger  *logging.Logger
}

// NewService creates the auth service. All dependencies are required.
func NewService(users UserRepository, tokens TokenRepository, hasher *Hasher, codec *TokenCodec, auditor audit.Recorder, logger *logging.Logger) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		codec:   codec,
		auditor: auditor,
		logger:  logger.With("component", "auth"),
	}
}

// Codec exposes the token codec for transports that need to validate
// access tokens in middleware.
func (s *Service) Codec() *TokenCodec { return s.codec }

// RegisterInput carries the self-registration fields.
type RegisterInput struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	MatricNumber string `json:"matric_number"`
	Level        string `json:"level"`
	Phone        string `json:"phone"`
}

// Register creates a student account and signs it in, returning the
// new user and a fresh token pair.
//
// Self-registration always yields the student role; admin accounts are
// seeded or promoted, never self-made.
func (s *Service) Register(ctx context.Context, in RegisterInput, ip string) (*User, *TokenPair, error) {
	if err := ValidatePassword(in.Password); err != nil {
		return nil, nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Email:        NormalizeEmail(in.Email),
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		MatricNumber: in.MatricNumber,
		Level:        in.Level,
		Phone:        in.Phone,
		Role:         RoleStudent,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	s.record(ctx, &audit.Event{
		Action: audit.ActionRegister,
		UserID: user.ID,
		Email:  user.Email,
		IP:     ip,
	})

	pair, err := s.issuePair(ctx, user, "")
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login verifies credentials and returns the user with a fresh token
// pair. Each login starts a new refresh-token family, so sessions on
// different devices rotate and revoke independently.
//
// Unknown email and wrong password both return ErrInvalidCredentials;
// the distinction is never leaked to the caller.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*User, *TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.record(ctx, &audit.Event{
				Action: audit.ActionLoginFailed,
				Email:  NormalizeEmail(email),
				IP:     ip,
				Details: map[string]any{
					"reason": "unknown_email",
				},
			})
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.record(ctx, &audit.Event{
			Action: audit.ActionLoginFailed,
			UserID: user.ID,
			Email:  user.Email,
			IP:     ip,
			Details: map[string]any{
				"reason": "wrong_password",
			},
		})
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.record(ctx, &audit.Event{
			Action: audit.ActionLoginFailed,
			UserID: user.ID,
			Email:  user.Email,
			IP:     ip,
			Details: map[string]any{
				"reason": "account_inactive",
			},
		})
		return nil, nil, ErrUserInactive
	}

	// Transparent rehash: if the stored hash predates the current cost
	// parameters, re-store it now while the plaintext is in hand.
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if newHash, err := s.hasher.Hash(password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
			} else {
				user.PasswordHash = newHash
				s.record(ctx, &audit.Event{
					Action: audit.ActionPasswordRehash,
					UserID: user.ID,
					Email:  user.Email,
				})
			}
		}
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("recording last login failed", "user_id", user.ID, "error", err)
	}

	s.record(ctx, &audit.Event{
		Action: audit.ActionLogin,
		UserID: user.ID,
		Email:  user.Email,
		IP:     ip,
	})

	pair, err := s.issuePair(ctx, user, "")
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is spent and a
// new pair in the same family is issued.
//
// Any presentation of a token that cannot be spent — unknown to the
// store, already consumed, or beaten by a concurrent refresh — is
// treated as theft: the whole family is revoked and ErrTokenReuse is
// returned. Signature and expiry failures return their own sentinels
// without touching the store.
func (s *Service) Refresh(ctx context.Context, rawToken, ip string) (*User, *TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(rawToken)
	if err != nil {
		return nil, nil, err
	}

	tokenHash := HashToken(rawToken)

	record, err := s.tokens.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			// Validly signed but absent from the store. Fail closed:
			// the only way this happens is replay of a token whose row
			// was swept, or issuance we have no record of. Either way
			// the family is burned.
			return nil, nil, s.revokeOnReuse(ctx, claims.Subject, claims.Family, ip, "unknown_token")
		}
		return nil, nil, err
	}

	if record.Revoked {
		return nil, nil, s.revokeOnReuse(ctx, record.UserID, record.Family, ip, "consumed_token")
	}

	consumed, err := s.tokens.Consume(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}
	if !consumed {
		// Lost the race to a concurrent refresh of the same token.
		// The winner got the new pair; this presentation is reuse.
		return nil, nil, s.revokeOnReuse(ctx, record.UserID, record.Family, ip, "concurrent_reuse")
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	pair, err := s.issuePair(ctx, user, record.Family)
	if err != nil {
		// The old token is already spent; the client must log in again.
		return nil, nil, err
	}

	s.record(ctx, &audit.Event{
		Action: audit.ActionTokenRefresh,
		UserID: user.ID,
		Email:  user.Email,
		IP:     ip,
		Details: map[string]any{
			"family": record.Family,
		},
	})

	return user, pair, nil
}

// revokeOnReuse burns a token family after a reuse detection and
// returns ErrTokenReuse. Revocation failure is logged but the caller
// still gets the reuse error: the client is rejected either way.
func (s *Service) revokeOnReuse(ctx context.Context, userID, family, ip, reason string) error {
	if err := s.tokens.RevokeFamily(ctx, family); err != nil {
		s.logger.Error("revoking family after reuse failed", "family", family, "error", err)
	}

	s.logger.Warn("refresh token reuse detected",
		"user_id", userID, "family", family, "reason", reason)
	s.record(ctx, &audit.Event{
		Action: audit.ActionTokenReuse,
		UserID: userID,
		IP:     ip,
		Details: map[string]any{
			"family": family,
			"reason": reason,
		},
	})

	return ErrTokenReuse
}

// Logout revokes the presented refresh token's whole family. It never
// fails: an invalid, expired, or unknown token leaves the client in
// the same logged-out state a valid one would.
//
// Revocation is family-wide, not single-token: the cookie presented at
// logout may be stale (an old device cookie, or logout racing a
// refresh), and ending the session means killing its current rotation,
// wherever it is.
func (s *Service) Logout(ctx context.Context, rawToken, ip string) {
	if rawToken == "" {
		return
	}

	claims, err := s.codec.DecodeRefresh(rawToken)
	if err != nil {
		return
	}

	if err := s.tokens.RevokeFamily(ctx, claims.Family); err != nil {
		s.logger.Warn("revoking family on logout failed", "family", claims.Family, "error", err)
		return
	}

	s.record(ctx, &audit.Event{
		Action: audit.ActionLogout,
		UserID: claims.Subject,
		IP:     ip,
		Details: map[string]any{
			"family": claims.Family,
		},
	})
}

// ChangePassword verifies the current password and stores a hash of
// the new one. Existing sessions stay valid; RevokeAllSessions is the
// separate, explicit kill switch.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.record(ctx, &audit.Event{
		Action: audit.ActionPasswordChange,
		UserID: user.ID,
		Email:  user.Email,
	})

	return nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListSessions returns a user's active refresh tokens, one per
// signed-in device.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]RefreshToken, error) {
	return s.tokens.ListActiveByUser(ctx, userID)
}

// RevokeAllSessions revokes every refresh token a user holds, across
// all families. The next action on any device is a forced login.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// issuePair creates and persists a new access/refresh pair. An empty
// family starts a new one. The refresh token record must be stored
// before the pair is handed out; an unpersisted token could never be
// rotated and would read as theft on first use.
func (s *Service) issuePair(ctx context.Context, user *User, family string) (*TokenPair, error) {
	access, err := s.codec.EncodeAccess(user)
	if err != nil {
		return nil, err
	}

	refresh, family, expiresAt, err := s.codec.EncodeRefresh(user.ID, family)
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		UserID:    user.ID,
		Family:    family,
		TokenHash: HashToken(refresh),
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.codec.AccessTTL().Seconds()),
	}, nil
}

// record writes an audit event, logging on failure. Auditing is
// best-effort: a broken trail must not block authentication.
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, event); err != nil {
		s.logger.Warn("recording audit event failed", "action", event.Action, "error", err)
	}
}
