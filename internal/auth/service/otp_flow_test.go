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
	dErrors "keyline/pkg/domain-errors"
)

func (s *ServiceSuite) TestRequestOTP() {
	s.T().Run("Given OTP login enabled When requesting Then the code is generated and dispatched", func(t *testing.T) {
		cfg := s.acmeConfig()

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockOtp.EXPECT().Generate(gomock.Any(), "alice@acme.test", models.ChannelEmail, models.PurposeLogin, cfg.Otp).
			Return("123456", nil)
		s.mockSender.EXPECT().Send(gomock.Any(), models.ChannelEmail, "alice@acme.test", "123456", models.PurposeLogin).
			Return(nil)

		result, err := s.service.RequestOTP(context.Background(), "acme", "alice@acme.test", models.ChannelEmail, models.PurposeLogin)
		s.Require().NoError(err)
		assert.Equal(t, models.ChannelEmail, result.Channel)
		assert.Empty(t, result.DebugCode, "codes never echo without the dev flag")
	})

	s.T().Run("Given delivery fails Then the request still succeeds", func(t *testing.T) {
		cfg := s.acmeConfig()

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockOtp.EXPECT().Generate(gomock.Any(), "alice@acme.test", models.ChannelEmail, models.PurposeLogin, cfg.Otp).
			Return("123456", nil)
		s.mockSender.EXPECT().Send(gomock.Any(), models.ChannelEmail, "alice@acme.test", "123456", models.PurposeLogin).
			Return(errors.New("smtp timeout"))

		// The challenge is persisted; the caller can ask for a resend.
		_, err := s.service.RequestOTP(context.Background(), "acme", "alice@acme.test", models.ChannelEmail, models.PurposeLogin)
		s.Require().NoError(err)
	})

	s.T().Run("Given OTP login disabled for the class Then method_disabled", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.Methods[models.ClassEmail] = []models.AuthMethod{models.MethodPassword}

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)

		_, err := s.service.RequestOTP(context.Background(), "acme", "alice@acme.test", models.ChannelEmail, models.PurposeLogin)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMethodDisabled))
	})

	s.T().Run("Given a reset purpose Then method toggles do not apply", func(t *testing.T) {
		cfg := s.acmeConfig()
		cfg.Methods[models.ClassEmail] = []models.AuthMethod{models.MethodPassword}

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockOtp.EXPECT().Generate(gomock.Any(), "alice@acme.test", models.ChannelEmail, models.PurposeReset, cfg.Otp).
			Return("654321", nil)
		s.mockSender.EXPECT().Send(gomock.Any(), models.ChannelEmail, "alice@acme.test", "654321", models.PurposeReset).
			Return(nil)

		_, err := s.service.RequestOTP(context.Background(), "acme", "alice@acme.test", models.ChannelEmail, models.PurposeReset)
		s.Require().NoError(err)
	})

	s.T().Run("Given the dev echo flag Then the code appears in the result", func(t *testing.T) {
		cfg := s.acmeConfig()
		s.service.debugEcho = true
		t.Cleanup(func() { s.service.debugEcho = false })

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(cfg, nil)
		s.mockOtp.EXPECT().Generate(gomock.Any(), "alice@acme.test", models.ChannelEmail, models.PurposeLogin, cfg.Otp).
			Return("123456", nil)
		s.mockSender.EXPECT().Send(gomock.Any(), models.ChannelEmail, "alice@acme.test", "123456", models.PurposeLogin).
			Return(nil)

		result, err := s.service.RequestOTP(context.Background(), "acme", "alice@acme.test", models.ChannelEmail, models.PurposeLogin)
		s.Require().NoError(err)
		assert.Equal(t, "123456", result.DebugCode)
	})
}

func (s *ServiceSuite) TestVerifyOTPAndLogin() {
	meta := session.Metadata{IPAddress: "203.0.113.7"}

	s.T().Run("Given a valid code Then a session is minted", func(t *testing.T) {
		user := s.acmeUser()
		sess := s.acmeSession(user, models.MethodOTP)

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockOtp.EXPECT().Verify(gomock.Any(), "alice@acme.test", "123456", models.PurposeLogin).
			Return(models.OtpOutcomeValid, nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "alice@acme.test").Return(user, nil)
		s.mockSessions.EXPECT().Create(gomock.Any(), user, models.MethodOTP, 2*time.Hour, meta).Return(sess, nil)

		result, err := s.service.VerifyOTPAndLogin(context.Background(), "acme", "alice@acme.test", "123456", models.PurposeLogin, meta)
		s.Require().NoError(err)
		assert.Equal(t, sess.Token, result.Token)
	})

	s.T().Run("Given mismatch, not-found and expired outcomes Then one opaque otp_invalid error", func(t *testing.T) {
		for _, outcome := range []models.OtpOutcome{
			models.OtpOutcomeMismatch,
			models.OtpOutcomeNotFound,
			models.OtpOutcomeExpired,
		} {
			s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
			s.mockOtp.EXPECT().Verify(gomock.Any(), "alice@acme.test", "000000", models.PurposeLogin).
				Return(outcome, nil)

			_, err := s.service.VerifyOTPAndLogin(context.Background(), "acme", "alice@acme.test", "000000", models.PurposeLogin, meta)
			s.Require().Error(err, "outcome %s", outcome)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeOtpInvalid), "outcome %s", outcome)
		}
	})

	s.T().Run("Given a locked-out challenge Then otp_locked_out is distinguishable", func(t *testing.T) {
		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockOtp.EXPECT().Verify(gomock.Any(), "alice@acme.test", "123456", models.PurposeLogin).
			Return(models.OtpOutcomeLockedOut, nil)

		_, err := s.service.VerifyOTPAndLogin(context.Background(), "acme", "alice@acme.test", "123456", models.PurposeLogin, meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOtpLockedOut))
	})

	s.T().Run("Given a consumed code without a matching user Then the login fails closed", func(t *testing.T) {
		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockOtp.EXPECT().Verify(gomock.Any(), "ghost@acme.test", "123456", models.PurposeLogin).
			Return(models.OtpOutcomeValid, nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "ghost@acme.test").
			Return(nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound))

		// No session is created and no account springs into existence.
		_, err := s.service.VerifyOTPAndLogin(context.Background(), "acme", "ghost@acme.test", "123456", models.PurposeLogin, meta)
		s.Require().Error(err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.T().Run("Given a verification purpose Then the identifier is marked verified", func(t *testing.T) {
		user := s.acmeUser()
		user.EmailVerified = false
		sess := s.acmeSession(user, models.MethodOTP)

		s.mockConfigs.EXPECT().Resolve(gomock.Any()).Return(s.acmeConfig(), nil)
		s.mockOtp.EXPECT().Verify(gomock.Any(), "alice@acme.test", "123456", models.PurposeVerification).
			Return(models.OtpOutcomeValid, nil)
		s.mockUsers.EXPECT().FindByIdentifier(gomock.Any(), "alice@acme.test").Return(user, nil)
		s.mockUsers.EXPECT().Save(gomock.Any(), user).DoAndReturn(
			func(_ context.Context, saved *models.User) error {
				assert.True(t, saved.EmailVerified)
				return nil
			})
		s.mockSessions.EXPECT().Create(gomock.Any(), user, models.MethodOTP, 2*time.Hour, meta).Return(sess, nil)

		_, err := s.service.VerifyOTPAndLogin(context.Background(), "acme", "alice@acme.test", "123456", models.PurposeVerification, meta)
		s.Require().NoError(err)
	})
}
