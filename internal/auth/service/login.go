package service

import (
	"context"
	"errors"

	"keyline/internal/auth/models"
	"keyline/internal/auth/session"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

// LoginWithPassword authenticates an identifier/password pair and mints a
// session. Unknown users and wrong passwords are indistinguishable to the
// caller: both surface as invalid_credentials, and the unknown-user path
// burns a dummy hash verification so timing does not differ either.
func (s *Service) LoginWithPassword(ctx context.Context, tenantID domain.TenantID, identifier, password string, meta session.Metadata) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login_password")
	defer span.End()
	defer s.observeLatency("login_password", s.now())

	ctx = tenantctx.With(ctx, tenantctx.TenantContext{TenantID: tenantID})

	cfg, err := s.configs.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if identifier == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identifier and password are required")
	}

	class := models.ClassifyIdentifier(identifier)
	if !cfg.MethodEnabled(class, models.MethodPassword) {
		s.authFailure(ctx, "password_method_disabled", false, "identifier_class", string(class))
		return nil, dErrors.New(dErrors.CodeMethodDisabled, "password login is not enabled for this identifier")
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Equalize cost with the known-user path before failing.
			_, _ = s.hasher.Verify(password, s.dummyHash)
			s.authFailure(ctx, "user_not_found", false)
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not look up user")
	}

	if user.PasswordHash == "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		s.authFailure(ctx, "no_password_set", false, "user_id", user.ID.String())
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not verify password")
	}
	if !ok {
		s.authFailure(ctx, "password_mismatch", false, "user_id", user.ID.String())
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
	}

	sess, err := s.sessions.Create(ctx, user, models.MethodPassword, cfg.SessionTTL, meta)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "login_succeeded",
		"user_id", user.ID.String(),
		"session_id", sess.ID.String(),
		"auth_method", string(models.MethodPassword),
	)
	s.countLoginSuccess(models.MethodPassword)

	return &models.LoginResult{
		Token:   sess.Token,
		User:    user.Summary(),
		Session: sess,
	}, nil
}

// ValidateSession resolves a bearer token to its live session. Used by the
// surrounding HTTP layer to guard authenticated endpoints.
func (s *Service) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.validate_session")
	defer span.End()

	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired session")
		}
		return nil, err
	}
	return sess, nil
}

// Logout revokes a single session. Idempotent: revoking an unknown token
// succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "auth.logout")
	defer span.End()

	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	s.countSessionRevoked(1)
	return nil
}

// RevokeAllSessions revokes every session the user holds within the given
// tenant. Administrative operation; sessions under other tenants are
// untouched even for a reused user ID.
func (s *Service) RevokeAllSessions(ctx context.Context, tenantID domain.TenantID, userID domain.UserID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "auth.revoke_all_sessions")
	defer span.End()

	ctx = tenantctx.With(ctx, tenantctx.TenantContext{TenantID: tenantID})

	deleted, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.logAudit(ctx, "sessions_revoked", "user_id", userID.String(), "count", deleted)
	s.countSessionRevoked(deleted)
	return deleted, nil
}
