// Package domain provides type-safe identifiers so user, session and tenant
// IDs cannot be mixed up at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "keyline/pkg/domain-errors"
)

// Distinct ID types - the compiler prevents passing a UserID where a
// SessionID is expected.
type (
	UserID    uuid.UUID
	SessionID uuid.UUID
)

// TenantID is the slug that addresses a tenant (e.g. "acme"). Tenants are
// provisioned by the surrounding platform; the auth core only validates the
// shape at trust boundaries.
type TenantID string

const maxTenantIDLength = 64

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a fresh random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

// ParseTenantID validates a tenant slug: non-empty, at most 64 characters,
// lowercase letters, digits, '-' and '_' only.
func ParseTenantID(s string) (TenantID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID cannot be empty")
	}
	if len(s) > maxTenantIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID too long")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID contains invalid characters")
		}
	}
	return TenantID(s), nil
}

// String methods - for logging and persistence.

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string  { return string(id) }

// IsZero reports whether the ID is the zero value.

func (id UserID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsZero() bool  { return id == "" }

// Text marshaling - JSON encodes the IDs in their canonical string form.

func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	return id, nil
}
