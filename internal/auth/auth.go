// Package auth handles user accounts, password verification, access tokens,
// and refresh sessions for the Recetario API. Accounts live in PostgreSQL,
// refresh sessions are ephemeral Redis state with TTL expiry.
package auth

import (
	"errors"
	"time"
)

// Roles assigned to accounts. New signups get RoleUser.
const (
	RoleUser  = "usuario"
	RoleAdmin = "admin"
)

var (
	// ErrInvalidCredentials is returned on a failed login. The caller cannot
	// tell whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrEmailTaken is returned when signing up with an email that already
	// has an account.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrInvalidToken is returned for expired, malformed, or forged tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrPasswordTooShort is returned when a signup password is below the
	// minimum length.
	ErrPasswordTooShort = errors.New("auth: password too short")
)

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Session is the authenticated identity attached to a request or WebSocket
// connection after token verification.
type Session struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Active reports whether the session exists and has not expired.
func (s *Session) Active() bool {
	return s != nil && time.Now().Before(s.ExpiresAt)
}

// IsAdmin reports whether the session belongs to an admin account.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}
