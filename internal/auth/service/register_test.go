package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	dErrors "keyline/pkg/domain-errors"
)

func (s *ServiceSuite) TestRegister() {
	s.T().Run("Given self-registration enabled Then a user is created with a hashed password", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.AllowSelfRegistration = true

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockHasher.EXPECT().Hash("a-long-enough-password").Return("$argon2id$hashed", nil)
		s.mockUsers.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, user *models.User) error {
				assert.Equal(t, "alice@acme.test", user.Email)
				assert.Equal(t, "$argon2id$hashed", user.PasswordHash)
				assert.Equal(t, "acme", user.TenantID.String())
				assert.False(t, user.ID.IsZero())
				return nil
			})

		user, err := s.service.Register(context.Background(), "acme", "alice@acme.test", "a-long-enough-password")
		s.Require().NoError(err)
		assert.Equal(t, "alice@acme.test", user.Email)
	})

	s.T().Run("Given self-registration disabled Then registration_disabled", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.AllowSelfRegistration = false

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)

		_, err := s.service.Register(context.Background(), "acme", "alice@acme.test", "a-long-enough-password")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRegistrationDisabled))
	})

	s.T().Run("Given an invalid email Then invalid_input", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.AllowSelfRegistration = true

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)

		_, err := s.service.Register(context.Background(), "acme", "not-an-email", "a-long-enough-password")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.T().Run("Given a password below the tenant minimum Then validation fails", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.AllowSelfRegistration = true
		cfg.Password.MinLength = 12

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)

		_, err := s.service.Register(context.Background(), "acme", "alice@acme.test", "elevenchars")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.T().Run("Given a taken email Then conflict", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.AllowSelfRegistration = true

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockHasher.EXPECT().Hash("a-long-enough-password").Return("$argon2id$hashed", nil)
		s.mockUsers.EXPECT().Save(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("identifier already in use within tenant: %w", sentinel.ErrConflict))

		_, err := s.service.Register(context.Background(), "acme", "alice@acme.test", "a-long-enough-password")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
