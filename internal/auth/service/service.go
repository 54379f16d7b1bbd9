// Package service is the auth orchestrator: the façade the HTTP layer calls
// for password login, OTP request/verify, registration and logout. It
// resolves the tenant, installs the tenant context, and drives the OTP
// engine and session issuer. Terminal states are a LoginResult or a typed
// domain error; nothing partial is ever exposed.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"keyline/internal/auth/delivery"
	"keyline/internal/auth/models"
	"keyline/internal/auth/session"
	"keyline/internal/platform/metrics"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

// UserStore defines the persistence interface for user data, tenant-scoped
// through the ambient context.
// Error Contract: FindByIdentifier returns a sentinel.ErrNotFound-wrapped
// error when no user matches within the context tenant.
type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
}

// ChallengeEngine issues and verifies one-time codes.
type ChallengeEngine interface {
	Generate(ctx context.Context, identifier string, channel models.Channel, purpose models.Purpose, policy models.OtpPolicy) (string, error)
	Verify(ctx context.Context, identifier, submittedCode string, purpose models.Purpose) (models.OtpOutcome, error)
}

// SessionIssuer mints and revokes opaque session tokens.
type SessionIssuer interface {
	Create(ctx context.Context, user *models.User, method models.AuthMethod, ttl time.Duration, meta session.Metadata) (*models.Session, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID domain.UserID) (int, error)
}

// ConfigResolver returns the auth policy for the context tenant.
type ConfigResolver interface {
	Resolve(ctx context.Context) (*models.AuthConfig, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Service orchestrates the authentication flows.
type Service struct {
	users    UserStore
	otp      ChallengeEngine
	sessions SessionIssuer
	configs  ConfigResolver
	hasher   PasswordHasher
	sender   delivery.Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// debugEcho makes RequestOTP echo the generated code in its result.
	// Development only; unreachable unless explicitly enabled at build time.
	debugEcho bool

	// dummyHash equalizes password verification cost when the user does not
	// exist, so response timing does not leak identifier existence.
	dummyHash string

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSender sets the OTP delivery channel.
func WithSender(sender delivery.Sender) Option {
	return func(s *Service) { s.sender = sender }
}

// WithDebugEcho enables echoing generated OTP codes in responses. Never set
// this in a production build.
func WithDebugEcho() Option {
	return func(s *Service) { s.debugEcho = true }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the orchestrator. users, otp, sessions, configs and hasher
// are required.
func New(users UserStore, otpEngine ChallengeEngine, sessions SessionIssuer, configs ConfigResolver, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil || otpEngine == nil || sessions == nil || configs == nil || hasher == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "auth service missing required dependency")
	}

	svc := &Service{
		users:    users,
		otp:      otpEngine,
		sessions: sessions,
		configs:  configs,
		hasher:   hasher,
		tracer:   otel.Tracer("keyline/internal/auth/service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	dummy, err := hasher.Hash("keyline-timing-equalizer-not-a-password")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not precompute dummy hash")
	}
	svc.dummyHash = dummy

	return svc, nil
}
