package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/iesaconnect/campus-core/internal/audit"
	"github.com/iesaconnect/campus-core/internal/auth"
)

// refreshCookieName is the name of the httpOnly refresh token cookie.
const refreshCookieName = "refresh_token"

// refreshCookiePath scopes the cookie to the auth endpoints, so the
// refresh token is never sent with ordinary API requests.
const refreshCookiePath = "/api/v1/auth"

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	MatricNumber string `json:"matric_number"`
	Level        string `json:"level"`
	Phone        string `json:"phone"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the optional request body for POST /auth/refresh
// and /auth/logout, used by clients that cannot send cookies.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// changePasswordRequest is the request body for POST /auth/change-password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// tokenResponse is the response body for endpoints that issue tokens.
// The refresh token is duplicated in the body for non-browser clients;
// browsers receive it in the httpOnly cookie.
type tokenResponse struct {
	User         *auth.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
}

// handleRegister creates a student account and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeValidationError(w, "email is required")
		return
	}
	// ParseAddress also accepts the "Name <addr>" form; comparing the
	// parsed address back to the input restricts it to a bare address.
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		writeValidationError(w, "email address is malformed")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		writeValidationError(w, "first_name and last_name are required")
		return
	}

	user, pair, err := s.service.Register(r.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MatricNumber: req.MatricNumber,
		Level:        req.Level,
		Phone:        req.Phone,
	}, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeValidationError(w, err.Error())
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "an account with this email already exists")
		default:
			s.logger.Error("registration failed", "error", err)
			writeInternalError(w, "registration failed")
		}
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// handleLogin authenticates a user and issues a fresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, pair, err := s.service.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid email or password")
		case errors.Is(err, auth.ErrUserInactive):
			writeForbidden(w, "account is deactivated")
		default:
			s.logger.Error("login failed", "error", err)
			writeInternalError(w, "login failed")
		}
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// handleRefresh rotates the presented refresh token and issues a new
// pair. The token is read from the httpOnly cookie, falling back to
// the request body for clients without cookie support.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := s.extractRefreshToken(r)
	if raw == "" {
		writeUnauthorized(w, "refresh token required")
		return
	}

	user, pair, err := s.service.Refresh(r.Context(), raw, clientIP(r))
	if err != nil {
		s.clearRefreshCookie(w)
		switch {
		case errors.Is(err, auth.ErrTokenReuse):
			writeUnauthorized(w, "refresh token reuse detected; all sessions revoked")
		case errors.Is(err, auth.ErrTokenExpired):
			writeUnauthorized(w, "refresh token has expired")
		case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrWrongTokenClass):
			writeUnauthorized(w, "invalid refresh token")
		case errors.Is(err, auth.ErrUserInactive):
			writeForbidden(w, "account is deactivated")
		default:
			s.logger.Error("token refresh failed", "error", err)
			writeInternalError(w, "token refresh failed")
		}
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// handleLogout revokes the presented refresh token and clears the
// cookie. Always returns 200: logout with a bad token is still a
// logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := s.extractRefreshToken(r)
	s.service.Logout(r.Context(), raw, clientIP(r))

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.service.GetUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("fetching user failed", "error", err)
		writeInternalError(w, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// sessionInfo is one active session in the sessions listing. The token
// hash never leaves the server.
type sessionInfo struct {
	ID        string `json:"id"`
	Family    string `json:"family"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// handleListSessions returns the caller's active sessions, one per
// signed-in device.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tokens, err := s.service.ListSessions(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	sessions := make([]sessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, sessionInfo{
			ID:        t.ID,
			Family:    t.Family,
			CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			ExpiresAt: t.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleRevokeSessions revokes every session the caller holds,
// including the current one.
func (s *Server) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.service.RevokeAllSessions(r.Context(), claims.Subject); err != nil {
		s.logger.Error("revoking sessions failed", "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "all sessions revoked"})
}

// handleChangePassword verifies the current password and stores the
// new one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.service.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "current password is incorrect")
		case errors.Is(err, auth.ErrWeakPassword):
			writeValidationError(w, err.Error())
		case errors.Is(err, auth.ErrUserNotFound):
			writeNotFound(w, "user not found")
		default:
			s.logger.Error("password change failed", "error", err)
			writeInternalError(w, "password change failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// handleListAudit returns the audit trail, filtered and paginated.
// Admin only.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not available")
		return
	}

	filter := audit.Filter{
		Action: r.URL.Query().Get("action"),
		UserID: r.URL.Query().Get("user_id"),
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit events failed", "error", err)
		writeInternalError(w, "failed to list audit events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an integer query parameter, returning 0 when absent
// or malformed.
func queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// extractRefreshToken reads the refresh token from the cookie, falling
// back to the JSON request body.
func (s *Server) extractRefreshToken(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	var req refreshRequest
	if r.Body != nil {
		//nolint:errcheck // absent or malformed body falls through to empty token
		json.NewDecoder(r.Body).Decode(&req)
	}
	return req.RefreshToken
}

// setRefreshCookie writes the refresh token as an httpOnly cookie
// scoped to the auth endpoints.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(s.service.Codec().RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: s.cookieSameSite(),
	})
}

// clearRefreshCookie expires the refresh cookie.
func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: s.cookieSameSite(),
	})
}

// cookieSameSite maps the configured SameSite mode. "none" is needed
// when the portal frontend is served from a different origin; browsers
// then also require Secure.
func (s *Server) cookieSameSite() http.SameSite {
	switch strings.ToLower(s.secCfg.Cookie.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
