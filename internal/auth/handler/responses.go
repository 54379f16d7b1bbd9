package handler

import (
	"time"

	"keyline/internal/auth/models"
)

type loginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      models.UserSummary `json:"user"`
}

type otpRequestedResponse struct {
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	Purpose   string `json:"purpose"`
	DebugCode string `json:"debug_code,omitempty"`
}

type registerResponse struct {
	User models.UserSummary `json:"user"`
}

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	AuthMethod string    `json:"auth_method"`
	Device     string    `json:"device,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type revokedResponse struct {
	Revoked int `json:"revoked"`
}

func newLoginResponse(res *models.LoginResult) loginResponse {
	return loginResponse{
		Token:     res.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      res.User,
	}
}

func newSessionResponse(sess *models.Session) sessionResponse {
	return sessionResponse{
		SessionID:  sess.ID.String(),
		UserID:     sess.UserID.String(),
		TenantID:   sess.TenantID.String(),
		AuthMethod: string(sess.AuthMethod),
		Device:     sess.DeviceDisplayName,
		ExpiresAt:  sess.ExpiresAt,
	}
}
