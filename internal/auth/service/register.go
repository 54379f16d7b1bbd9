package service

import (
	"context"
	"errors"
	"strings"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

// Register creates a user within the tenant, honoring the tenant's
// self-registration toggle and password policy. The created user has no
// session; the caller logs in separately.
func (s *Service) Register(ctx context.Context, tenantID domain.TenantID, email, password string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "auth.register")
	defer span.End()
	defer s.observeLatency("register", s.now())

	ctx = tenantctx.With(ctx, tenantctx.TenantContext{TenantID: tenantID})

	cfg, err := s.configs.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.AllowSelfRegistration {
		return nil, dErrors.New(dErrors.CodeRegistrationDisabled, "self-registration is disabled for this tenant")
	}

	email = strings.TrimSpace(email)
	if email == "" || !strings.ContainsRune(email, '@') {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if len(password) < cfg.Password.Normalized().MinLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password does not meet the tenant policy")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not hash password")
	}

	now := s.now()
	user := &models.User{
		ID:           domain.NewUserID(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not create user")
	}

	s.logAudit(ctx, "user_registered", "user_id", user.ID.String())
	s.countUserRegistered()
	return user, nil
}
