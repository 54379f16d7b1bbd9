package models

import (
	"strings"

	dErrors "keyline/pkg/domain-errors"
)

// Channel is the transport an OTP code is dispatched over.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel validates a channel at the trust boundary.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return Channel(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
}

// Purpose is the reason an OTP challenge was issued. Challenges for different
// purposes never satisfy one another.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// ParsePurpose validates a purpose at the trust boundary.
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case PurposeLogin, PurposeVerification, PurposeReset:
		return Purpose(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
}

// AuthMethod is how a session was established.
type AuthMethod string

const (
	MethodPassword AuthMethod = "password"
	MethodOTP      AuthMethod = "otp"
)

// IdentifierClass describes what kind of value a user authenticates with.
// Per-tenant config enables login methods per class, not per user.
type IdentifierClass string

const (
	ClassEmail    IdentifierClass = "email"
	ClassPhone    IdentifierClass = "phone"
	ClassUsername IdentifierClass = "username"
)

// ClassifyIdentifier buckets an identifier into email, phone or username.
// The classification only drives policy lookup; identifiers are matched
// verbatim against stored users.
func ClassifyIdentifier(identifier string) IdentifierClass {
	if strings.ContainsRune(identifier, '@') {
		return ClassEmail
	}
	if isPhone(identifier) {
		return ClassPhone
	}
	return ClassUsername
}

func isPhone(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 6
}

// OtpOutcome is the closed result set of a challenge verification. Stores
// return it from their atomic verify-and-consume operation so the engine can
// match exhaustively instead of probing optional fields.
type OtpOutcome string

const (
	OtpOutcomeValid     OtpOutcome = "valid"
	OtpOutcomeNotFound  OtpOutcome = "not_found"
	OtpOutcomeExpired   OtpOutcome = "expired"
	OtpOutcomeLockedOut OtpOutcome = "locked_out"
	OtpOutcomeMismatch  OtpOutcome = "mismatch"
)
