package models

import "keyline/pkg/domain"

// UserSummary is the caller-facing projection of a user returned with a
// successful login. It never carries credential material.
type UserSummary struct {
	ID           domain.UserID   `json:"id"`
	Email        string          `json:"email"`
	TenantID     domain.TenantID `json:"tenant_id"`
	Roles        []string        `json:"roles"`
	IsSuperAdmin bool            `json:"is_super_admin"`
}

// Summary projects a user into its login-response shape.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID,
		Email:        u.Email,
		TenantID:     u.TenantID,
		Roles:        u.Roles,
		IsSuperAdmin: u.IsSuperAdmin,
	}
}

// LoginResult is the terminal success state of a login attempt.
type LoginResult struct {
	Token   string
	User    UserSummary
	Session *Session
}

// OtpRequestResult reports a dispatched challenge. DebugCode is populated
// only when the service runs with the development echo flag; in production
// posture it is always empty.
type OtpRequestResult struct {
	Channel   Channel
	Purpose   Purpose
	DebugCode string
}
