// Package otp issues and verifies short-lived one-time codes scoped to
// (tenant, identifier, purpose).
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"keyline/internal/auth/models"
	"keyline/internal/tenantctx"
	dErrors "keyline/pkg/domain-errors"
)

// Store is the persistence interface for OTP challenges. VerifyAndConsume
// must realize the read-check-mutate-delete sequence atomically: two racing
// calls for the same key must never both observe OtpOutcomeValid, and
// attempt increments must never be lost.
type Store interface {
	Upsert(ctx context.Context, challenge *models.OtpChallenge) error
	VerifyAndConsume(ctx context.Context, identifier string, purpose models.Purpose, codeHash [32]byte, now time.Time) (models.OtpOutcome, error)
}

// Engine generates, verifies and expires one-time codes. It holds no state
// of its own; all durable state lives behind the Store.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an Engine backed by the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Generate creates a numeric code per the tenant policy, replaces any live
// challenge for the (tenant, identifier, purpose) key and persists the new
// one with zero attempts. It returns the plaintext code exactly once; only
// its hash is stored. Dispatching the code is the caller's concern.
func (e *Engine) Generate(ctx context.Context, identifier string, channel models.Channel, purpose models.Purpose, policy models.OtpPolicy) (string, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(identifier) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identifier cannot be empty")
	}
	if _, err := models.ParseChannel(string(channel)); err != nil {
		return "", err
	}
	if _, err := models.ParsePurpose(string(purpose)); err != nil {
		return "", err
	}

	policy = policy.Normalized()
	code, err := newCode(policy.CodeLength)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate code")
	}

	now := e.now()
	challenge := &models.OtpChallenge{
		TenantID:    tc.TenantID,
		Identifier:  identifier,
		CodeHash:    HashCode(code),
		Purpose:     purpose,
		Channel:     channel,
		Attempts:    0,
		MaxAttempts: policy.MaxAttempts,
		ExpiresAt:   now.Add(policy.Expiry),
		CreatedAt:   now,
	}
	if err := e.store.Upsert(ctx, challenge); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not persist challenge")
	}

	e.logger.InfoContext(ctx, "otp challenge issued",
		"tenant_id", tc.TenantID.String(),
		"purpose", string(purpose),
		"channel", string(channel),
		"expires_at", challenge.ExpiresAt,
	)
	return code, nil
}

// Verify resolves a submitted code against the live challenge for the key.
// The outcome is a closed enum; an error is returned only for adapter
// failures, never for a merely wrong code. A valid outcome consumes the
// challenge: a second Verify with the same code reports NotFound.
func (e *Engine) Verify(ctx context.Context, identifier, submittedCode string, purpose models.Purpose) (models.OtpOutcome, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(identifier) == "" || submittedCode == "" {
		return models.OtpOutcomeNotFound, nil
	}
	if _, err := models.ParsePurpose(string(purpose)); err != nil {
		return "", err
	}

	outcome, err := e.store.VerifyAndConsume(ctx, identifier, purpose, HashCode(submittedCode), e.now())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not verify challenge")
	}

	if outcome != models.OtpOutcomeValid {
		e.logger.WarnContext(ctx, "otp verification failed",
			"tenant_id", tc.TenantID.String(),
			"purpose", string(purpose),
			"outcome", string(outcome),
		)
	}
	return outcome, nil
}

// HashCode returns the SHA-256 digest stored and compared in place of the
// plaintext code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// newCode draws each digit independently from crypto/rand so codes are
// uniformly distributed and unpredictable.
func newCode(digits int) (string, error) {
	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
