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

// RequestOTP issues a one-time code for the identifier and dispatches it
// over the requested channel. The code never appears in the result unless
// the service was built with the development echo flag. Delivery failure
// does not fail the request: the challenge is already persisted, so the
// caller can ask for a resend.
func (s *Service) RequestOTP(ctx context.Context, tenantID domain.TenantID, identifier string, channel models.Channel, purpose models.Purpose) (*models.OtpRequestResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.request_otp")
	defer span.End()
	defer s.observeLatency("request_otp", s.now())

	ctx = tenantctx.With(ctx, tenantctx.TenantContext{TenantID: tenantID})

	cfg, err := s.configs.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	// Login-purpose challenges are a login method and honor the per-class
	// method toggles. Verification and reset challenges are not logins and
	// are always issuable.
	if purpose == models.PurposeLogin {
		class := models.ClassifyIdentifier(identifier)
		if !cfg.MethodEnabled(class, models.MethodOTP) {
			s.authFailure(ctx, "otp_method_disabled", false, "identifier_class", string(class))
			return nil, dErrors.New(dErrors.CodeMethodDisabled, "OTP login is not enabled for this identifier")
		}
	}

	code, err := s.otp.Generate(ctx, identifier, channel, purpose, cfg.Otp)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "otp_requested",
		"purpose", string(purpose),
		"channel", string(channel),
	)
	s.countOtpIssued(purpose, channel)

	if s.sender != nil {
		if err := s.sender.Send(ctx, channel, identifier, code, purpose); err != nil {
			s.logger.ErrorContext(ctx, "otp delivery failed",
				"tenant_id", tenantID.String(),
				"channel", string(channel),
				"purpose", string(purpose),
				"error", err,
			)
			s.countDeliveryFailure()
		}
	}

	result := &models.OtpRequestResult{Channel: channel, Purpose: purpose}
	if s.debugEcho {
		result.DebugCode = code
	}
	return result, nil
}

// VerifyOTPAndLogin verifies a submitted code and, on success, mints a
// session for the user behind the identifier. If the purpose was login and
// no such user exists the operation fails closed; it never creates an
// account as a side effect.
func (s *Service) VerifyOTPAndLogin(ctx context.Context, tenantID domain.TenantID, identifier, code string, purpose models.Purpose, meta session.Metadata) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.verify_otp")
	defer span.End()
	defer s.observeLatency("verify_otp", s.now())

	ctx = tenantctx.With(ctx, tenantctx.TenantContext{TenantID: tenantID})

	cfg, err := s.configs.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := s.otp.Verify(ctx, identifier, code, purpose)
	if err != nil {
		return nil, err
	}
	s.countOtpVerification(outcome)

	switch outcome {
	case models.OtpOutcomeValid:
		// fall through to user resolution
	case models.OtpOutcomeLockedOut:
		s.authFailure(ctx, "otp_locked_out", false, "purpose", string(purpose))
		return nil, dErrors.New(dErrors.CodeOtpLockedOut, "too many attempts, request a new code")
	default:
		// NotFound, Expired and Mismatch collapse to one external message
		// so a caller cannot probe challenge state.
		s.authFailure(ctx, "otp_"+string(outcome), false, "purpose", string(purpose))
		return nil, dErrors.New(dErrors.CodeOtpInvalid, "invalid or expired code")
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// A consumed login challenge without a user is an inconsistency;
			// fail closed rather than minting a session or creating an account.
			s.authFailure(ctx, "otp_user_missing", true, "purpose", string(purpose))
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not look up user")
	}

	if purpose == models.PurposeVerification {
		s.markIdentifierVerified(ctx, user, identifier)
	}

	sess, err := s.sessions.Create(ctx, user, models.MethodOTP, cfg.SessionTTL, meta)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "login_succeeded",
		"user_id", user.ID.String(),
		"session_id", sess.ID.String(),
		"auth_method", string(models.MethodOTP),
		"purpose", string(purpose),
	)
	s.countLoginSuccess(models.MethodOTP)

	return &models.LoginResult{
		Token:   sess.Token,
		User:    user.Summary(),
		Session: sess,
	}, nil
}

// markIdentifierVerified records a successful verification-purpose OTP on
// the user. Best effort: a failed save leaves the flag unset for the next
// verification but does not fail the login.
func (s *Service) markIdentifierVerified(ctx context.Context, user *models.User, identifier string) {
	switch models.ClassifyIdentifier(identifier) {
	case models.ClassEmail:
		if user.EmailVerified {
			return
		}
		user.EmailVerified = true
	case models.ClassPhone:
		if user.PhoneVerified {
			return
		}
		user.PhoneVerified = true
	default:
		return
	}
	user.UpdatedAt = s.now()
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "could not persist verified flag",
			"user_id", user.ID.String(), "error", err)
	}
}
