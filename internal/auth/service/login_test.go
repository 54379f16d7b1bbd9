package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"keyline/internal/auth/models"
	"keyline/internal/auth/session"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	dErrors "keyline/pkg/domain-errors"
)

func (s *ServiceSuite) TestLoginWithPassword() {
	meta := session.Metadata{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

	s.T().Run("Given valid credentials When logging in Then a session is minted", func(t *testing.T) {
		user := s.acmeUser()
		sess := s.acmeSession(user, models.MethodPassword)

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "alice@acme.test").DoAndReturn(
			func(ctx context.Context, _ string) (*models.User, error) {
				// The store is invoked under the request's tenant context.
				tc, err := tenantctx.Require(ctx)
				assert.NoError(t, err)
				assert.Equal(t, "acme", tc.TenantID.String())
				return user, nil
			})
		s.mockHasher.EXPECT().Verify("swordfish-correct", user.PasswordHash).Return(true, nil)
		s.mockSessions.EXPECT().Create(gomock.Any(), user, models.MethodPassword, 2*time.Hour, meta).Return(sess, nil)

		result, err := s.service.LoginWithPassword(context.Background(), "acme", "alice@acme.test", "swordfish-correct", meta)
		s.Require().NoError(err)
		assert.Equal(t, sess.Token, result.Token)
		assert.Equal(t, user.ID, result.User.ID)
		assert.Equal(t, sess, result.Session)
	})

	s.T().Run("Given an unknown user When logging in Then invalid_credentials and the dummy hash is burned", func(t *testing.T) {
		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "ghost@acme.test").
			Return(nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound))
		// Timing equalization: verification still runs against the dummy hash.
		s.mockHasher.EXPECT().Verify("whatever", dummyHash).Return(false, nil)

		_, err := s.service.LoginWithPassword(context.Background(), "acme", "ghost@acme.test", "whatever", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.T().Run("Given a wrong password When logging in Then the error is indistinguishable from unknown user", func(t *testing.T) {
		user := s.acmeUser()

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "alice@acme.test").Return(user, nil)
		s.mockHasher.EXPECT().Verify("wrong", user.PasswordHash).Return(false, nil)

		_, err := s.service.LoginWithPassword(context.Background(), "acme", "alice@acme.test", "wrong", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.T().Run("Given a user without a password hash Then invalid_credentials", func(t *testing.T) {
		user := s.acmeUser()
		user.PasswordHash = ""

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "alice@acme.test").Return(user, nil)
		s.mockHasher.EXPECT().Verify("anything", dummyHash).Return(false, nil)

		_, err := s.service.LoginWithPassword(context.Background(), "acme", "alice@acme.test", "anything", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.T().Run("Given password login disabled for the class Then method_disabled", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.Methods[models.ClassEmail] = []models.AuthMethod{models.MethodOTP}

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)

		_, err := s.service.LoginWithPassword(context.Background(), "acme", "alice@acme.test", "irrelevant", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMethodDisabled))
	})

	s.T().Run("Given an unknown tenant Then tenant_not_found surfaces unchanged", func(t *testing.T) {
		s.mockConfigs.EXPECT().Resolve(gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeTenantNotFound, "unknown tenant"))

		_, err := s.service.LoginWithPassword(context.Background(), "ghost", "alice@acme.test", "pw", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantNotFound))
	})

	s.T().Run("Given empty inputs Then invalid_input without store access", func(t *testing.T) {
		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)

		_, err := s.service.LoginWithPassword(context.Background(), "acme", "", "", meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestValidateSession() {
	s.T().Run("Given a live token Then the session is returned", func(t *testing.T) {
		user := s.acmeUser()
		sess := s.acmeSession(user, models.MethodPassword)

		s.mockSessions.EXPECT().Validate(gomock.Any(), sess.Token).Return(sess, nil)

		found, err := s.service.ValidateSession(context.Background(), sess.Token)
		s.Require().NoError(err)
		assert.Equal(t, sess.ID, found.ID)
	})

	s.T().Run("Given an unknown token Then unauthorized", func(t *testing.T) {
		s.mockSessions.EXPECT().Validate(gomock.Any(), "bad-token").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "session not found"))

		_, err := s.service.ValidateSession(context.Background(), "bad-token")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.T().Run("Given an adapter failure Then it propagates", func(t *testing.T) {
		s.mockSessions.EXPECT().Validate(gomock.Any(), "token").
			Return(nil, dErrors.Wrap(errors.New("redis down"), dErrors.CodeUnavailable, "could not look up session"))

		_, err := s.service.ValidateSession(context.Background(), "token")
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestLogout() {
	s.T().Run("Given any token Then revocation is delegated", func(t *testing.T) {
		s.mockSessions.EXPECT().Revoke(gomock.Any(), "some-token").Return(nil)
		s.Require().NoError(s.service.Logout(context.Background(), "some-token"))
	})
}

func (s *ServiceSuite) TestRevokeAllSessions() {
	s.T().Run("Given a user Then all tenant sessions are revoked", func(t *testing.T) {
		user := s.acmeUser()

		s.mockSessions.EXPECT().RevokeAll(gomock.Any(), user.ID).DoAndReturn(
			func(ctx context.Context, _ any) (int, error) {
				tc, err := tenantctx.Require(ctx)
				assert.NoError(t, err)
				assert.Equal(t, "acme", tc.TenantID.String())
				return 3, nil
			})

		count, err := s.service.RevokeAllSessions(context.Background(), "acme", user.ID)
		s.Require().NoError(err)
		assert.Equal(t, 3, count)
	})
}
