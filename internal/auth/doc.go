// Package auth implements the credential and session-token core of
// Campus Core: password authentication, signed access/refresh tokens,
// and refresh-token rotation with family-based theft detection.
//
//   - Argon2id password hashing (OWASP parameters) with transparent
//     rehash-on-login when cost parameters change
//   - Short-lived HS256 access tokens and long-lived refresh tokens,
//     signed with two independent secrets
//   - Every issued refresh token is persisted; rotation consumes the
//     old token with a single conditional write, so at most one
//     rotation per token value succeeds even under concurrent replay
//   - Reuse of a consumed token revokes its entire family (all tokens
//     descended from one login)
//
// Authorization policy over the authenticated identity lives outside
// this package; it only carries the role tag in claims.
package auth
