package models

import (
	"strings"
	"time"

	"keyline/pkg/domain"
)

// User is owned by exactly one tenant. Identifier uniqueness (email or
// username) is scoped to the tenant, never global.
type User struct {
	ID            domain.UserID
	TenantID      domain.TenantID
	Email         string
	Username      string
	PasswordHash  string
	EmailVerified bool
	PhoneVerified bool
	Roles         []string
	IsSuperAdmin  bool
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Matches reports whether the given identifier addresses this user.
// Emails match case-insensitively, usernames verbatim.
func (u *User) Matches(identifier string) bool {
	if identifier == "" {
		return false
	}
	if u.Email != "" && strings.EqualFold(u.Email, identifier) {
		return true
	}
	return u.Username != "" && u.Username == identifier
}

// OtpChallenge is a live one-time code keyed by (tenant, identifier,
// purpose). At most one challenge exists per key; issuing a new one replaces
// the old. Only the SHA-256 hash of the code is ever stored.
type OtpChallenge struct {
	TenantID    domain.TenantID
	Identifier  string
	CodeHash    [32]byte
	Purpose     Purpose
	Channel     Channel
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether the challenge has no failed attempts left.
func (c *OtpChallenge) Exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// Session is a server-tracked, revocable proof of authentication bound to a
// user and tenant. Token is opaque and shown once at creation; lookups go
// through the store, never through parsing the token.
type Session struct {
	ID                domain.SessionID
	UserID            domain.UserID
	TenantID          domain.TenantID
	Token             string
	AuthMethod        AuthMethod
	ExpiresAt         time.Time
	CreatedAt         time.Time
	IPAddress         string
	UserAgent         string
	DeviceDisplayName string
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
