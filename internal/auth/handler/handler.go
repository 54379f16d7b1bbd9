// Package handler exposes the authentication flows over HTTP. The tenant is
// addressed in the URL, the flow in the request body's action field.
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"keyline/internal/auth/models"
	"keyline/internal/auth/session"
	"keyline/internal/platform/middleware"
	"keyline/internal/transport/httputil"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

// Service defines the orchestrator operations the handler depends on.
type Service interface {
	LoginWithPassword(ctx context.Context, tenantID domain.TenantID, identifier, password string, meta session.Metadata) (*models.LoginResult, error)
	RequestOTP(ctx context.Context, tenantID domain.TenantID, identifier string, channel models.Channel, purpose models.Purpose) (*models.OtpRequestResult, error)
	VerifyOTPAndLogin(ctx context.Context, tenantID domain.TenantID, identifier, code string, purpose models.Purpose, meta session.Metadata) (*models.LoginResult, error)
	Register(ctx context.Context, tenantID domain.TenantID, email, password string) (*models.User, error)
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	RevokeAllSessions(ctx context.Context, tenantID domain.TenantID, userID domain.UserID) (int, error)
}

// Handler handles the tenant-scoped authentication endpoints.
type Handler struct {
	auth   Service
	logger *slog.Logger
}

// New creates an auth Handler.
func New(auth Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, logger: logger}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tenants/{tenant_id}/auth/login", h.HandleLogin)
	r.Post("/tenants/{tenant_id}/auth/register", h.HandleRegister)
	r.Get("/auth/session", h.HandleSession)
	r.Post("/auth/logout", h.HandleLogout)
}

// RegisterAdmin registers administrative routes. The parent router is
// expected to guard these with its own authorization.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Delete("/admin/tenants/{tenant_id}/users/{user_id}/sessions", h.HandleRevokeAllSessions)
}

// HandleLogin implements POST /tenants/{tenant_id}/auth/login. The body's
// action field selects the flow:
//
//	{ "action": "verify_password", "identifier": "...", "password": "..." }
//	{ "action": "request_otp", "identifier": "...", "channel": "email", "purpose": "login" }
//	{ "action": "verify_otp", "identifier": "...", "code": "123456", "purpose": "login" }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "tenant_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := httputil.Decode[loginRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	meta := requestMetadata(r)

	switch req.Action {
	case actionVerifyPassword:
		res, err := h.auth.LoginWithPassword(ctx, tenantID, req.Identifier, req.Password, meta)
		if err != nil {
			h.loginFailed(ctx, req.Action, tenantID, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newLoginResponse(res))

	case actionRequestOTP:
		channel, err := models.ParseChannel(req.Channel)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		purpose, err := parsePurposeDefault(req.Purpose)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		res, err := h.auth.RequestOTP(ctx, tenantID, req.Identifier, channel, purpose)
		if err != nil {
			h.loginFailed(ctx, req.Action, tenantID, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, otpRequestedResponse{
			Status:    "sent",
			Channel:   string(res.Channel),
			Purpose:   string(res.Purpose),
			DebugCode: res.DebugCode,
		})

	case actionVerifyOTP:
		purpose, err := parsePurposeDefault(req.Purpose)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		res, err := h.auth.VerifyOTPAndLogin(ctx, tenantID, req.Identifier, req.Code, purpose, meta)
		if err != nil {
			h.loginFailed(ctx, req.Action, tenantID, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newLoginResponse(res))

	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"action must be one of 'verify_password', 'request_otp', 'verify_otp'"))
	}
}

// HandleRegister implements POST /tenants/{tenant_id}/auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "tenant_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := httputil.Decode[registerRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	user, err := h.auth.Register(ctx, tenantID, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed",
			"error", err,
			"tenant_id", tenantID.String(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registerResponse{User: user.Summary()})
}

// HandleSession implements GET /auth/session: resolves the bearer token to
// its live session. The tenant comes from the session itself, not the URL.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	sess, err := h.auth.ValidateSession(ctx, token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}

// HandleLogout implements POST /auth/logout. Idempotent: logging out an
// unknown or already-revoked token still returns 204.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	if err := h.auth.Logout(ctx, token); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeAllSessions implements
// DELETE /admin/tenants/{tenant_id}/users/{user_id}/sessions.
func (h *Handler) HandleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "tenant_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := domain.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	count, err := h.auth.RevokeAllSessions(ctx, tenantID, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke sessions",
			"error", err,
			"tenant_id", tenantID.String(),
			"user_id", userID.String(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, revokedResponse{Revoked: count})
}

func (h *Handler) loginFailed(ctx context.Context, action string, tenantID domain.TenantID, err error) {
	h.logger.WarnContext(ctx, "login attempt failed",
		"action", action,
		"tenant_id", tenantID.String(),
		"error", err,
		"request_id", middleware.GetRequestID(ctx),
	)
}

func parsePurposeDefault(raw string) (models.Purpose, error) {
	if raw == "" {
		return models.PurposeLogin, nil
	}
	return models.ParsePurpose(raw)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

func requestMetadata(r *http.Request) session.Metadata {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return session.Metadata{
		IPAddress: host,
		UserAgent: r.UserAgent(),
	}
}
