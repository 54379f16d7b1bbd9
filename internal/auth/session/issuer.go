// Package session mints, validates and revokes opaque session tokens.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
	"keyline/pkg/secrets"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Store is the persistence interface for sessions. Token-addressed methods
// resolve tenant scope from the stored row; Create and DeleteByUser are
// tenant-scoped through the ambient context.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID domain.UserID) (int, error)
}

// Metadata is the request-level context recorded on a new session.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Issuer mints opaque, high-entropy session tokens bound to (tenant, user).
type Issuer struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) { i.logger = logger }
}

// WithTTL configures the session lifetime. Zero or negative keeps the
// 7 day default.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// New constructs an Issuer backed by the given store.
func New(store Store, opts ...Option) *Issuer {
	issuer := &Issuer{
		store: store,
		ttl:   defaultSessionTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	if issuer.logger == nil {
		issuer.logger = slog.Default()
	}
	return issuer
}

// Create mints a session for the user. The raw token is returned exactly
// once on the created session; afterwards it is only resolvable through the
// store. An explicit positive ttl overrides the issuer default (tenant
// config may shorten or lengthen sessions).
func (i *Issuer) Create(ctx context.Context, user *models.User, method models.AuthMethod, ttl time.Duration, meta Metadata) (*models.Session, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if user.TenantID != tc.TenantID {
		return nil, dErrors.New(dErrors.CodeInternal, "user tenant does not match operation tenant")
	}

	token, err := secrets.NewToken()
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	now := i.now()
	session := &models.Session{
		ID:                domain.NewSessionID(),
		UserID:            user.ID,
		TenantID:          user.TenantID,
		Token:             token,
		AuthMethod:        method,
		ExpiresAt:         now.Add(ttl),
		CreatedAt:         now,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		DeviceDisplayName: deviceDisplayName(meta.UserAgent),
	}
	if err := i.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not persist session")
	}

	i.logger.InfoContext(ctx, "session created",
		"tenant_id", session.TenantID.String(),
		"user_id", session.UserID.String(),
		"session_id", session.ID.String(),
		"auth_method", string(method),
		"expires_at", session.ExpiresAt,
	)
	return session, nil
}

// Validate resolves a token to its session. Expired sessions are treated as
// absent and lazily deleted. Absence is reported as a not-found domain error.
func (i *Issuer) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}

	session, err := i.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not look up session")
	}

	if session.Expired(i.now()) {
		// Lazy cleanup; the session is gone either way.
		if err := i.store.Delete(ctx, token); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			i.logger.WarnContext(ctx, "could not delete expired session",
				"session_id", session.ID.String(), "error", err)
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return session, nil
}

// Revoke deletes a single session. Revoking an unknown or already-revoked
// token is not an error.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := i.store.Delete(ctx, token); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not revoke session")
	}
	return nil
}

// RevokeAll deletes every session for the user within the context tenant
// only. User IDs reused across tenants are unaffected in other tenants.
func (i *Issuer) RevokeAll(ctx context.Context, userID domain.UserID) (int, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return 0, err
	}

	deleted, err := i.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not revoke sessions")
	}

	i.logger.InfoContext(ctx, "sessions revoked",
		"tenant_id", tc.TenantID.String(),
		"user_id", userID.String(),
		"count", deleted,
	)
	return deleted, nil
}

// deviceDisplayName derives a short human label ("Chrome on Linux") from the
// raw User-Agent header, for session listings in account security UIs.
func deviceDisplayName(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return name + " on " + os
	case name != "":
		return name
	default:
		return os
	}
}
