package models

import (
	"time"

	"keyline/pkg/domain"
)

// OTP policy defaults applied when a tenant config leaves fields unset.
const (
	DefaultOtpCodeLength  = 6
	DefaultOtpExpiry      = 300 * time.Second
	DefaultOtpMaxAttempts = 3
)

// OtpPolicy parameterizes challenge generation and verification per tenant.
type OtpPolicy struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
}

// Normalized returns the policy with defaults applied to unset fields.
func (p OtpPolicy) Normalized() OtpPolicy {
	out := p
	if out.CodeLength <= 0 {
		out.CodeLength = DefaultOtpCodeLength
	}
	if out.Expiry <= 0 {
		out.Expiry = DefaultOtpExpiry
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultOtpMaxAttempts
	}
	return out
}

// PasswordPolicy is the tenant's password acceptance policy. Hashing
// parameters are fixed by the core; tenants only control acceptance.
type PasswordPolicy struct {
	MinLength int
}

// Normalized applies the default minimum length.
func (p PasswordPolicy) Normalized() PasswordPolicy {
	out := p
	if out.MinLength <= 0 {
		out.MinLength = 10
	}
	return out
}

// AuthConfig is the per-tenant authentication policy. It is read-only input
// to the core; tenant administration owns mutation.
type AuthConfig struct {
	TenantID domain.TenantID

	// Methods maps an identifier class to the login methods enabled for it.
	// An absent class means no method is enabled for that class.
	Methods map[IdentifierClass][]AuthMethod

	Otp                   OtpPolicy
	Password              PasswordPolicy
	SessionTTL            time.Duration
	AllowSelfRegistration bool
	RequireMFA            bool
	UpdatedAt             time.Time
}

// MethodEnabled reports whether the given login method is enabled for the
// identifier class.
func (c *AuthConfig) MethodEnabled(class IdentifierClass, method AuthMethod) bool {
	for _, m := range c.Methods[class] {
		if m == method {
			return true
		}
	}
	return false
}

// DefaultAuthConfig returns a permissive config used for development seeding:
// password and OTP login on email identifiers, OTP on phone, password on
// username, self-registration enabled.
func DefaultAuthConfig(tenantID domain.TenantID) *AuthConfig {
	return &AuthConfig{
		TenantID: tenantID,
		Methods: map[IdentifierClass][]AuthMethod{
			ClassEmail:    {MethodPassword, MethodOTP},
			ClassPhone:    {MethodOTP},
			ClassUsername: {MethodPassword},
		},
		Otp:                   OtpPolicy{}.Normalized(),
		Password:              PasswordPolicy{}.Normalized(),
		AllowSelfRegistration: true,
	}
}
