package otp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

type challengeKey struct {
	tenant     domain.TenantID
	identifier string
	purpose    models.Purpose
}

// InMemoryStore keeps OTP challenges in memory for tests and development.
//
// VerifyAndConsume runs its whole read-check-mutate-delete sequence inside a
// single critical section, which is the in-memory realization of the atomic
// conditional update the engine depends on: racing verifies serialize, at
// most one can observe a valid outcome, and attempt increments are never lost.
type InMemoryStore struct {
	mu         sync.Mutex
	challenges map[challengeKey]*models.OtpChallenge
}

// New constructs an empty in-memory OTP challenge store.
func New() *InMemoryStore {
	return &InMemoryStore{challenges: make(map[challengeKey]*models.OtpChallenge)}
}

// Upsert persists a challenge, replacing any live challenge for the same
// (tenant, identifier, purpose) key.
func (s *InMemoryStore) Upsert(ctx context.Context, challenge *models.OtpChallenge) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if challenge.TenantID != tc.TenantID {
		return fmt.Errorf("challenge tenant %q does not match context tenant %q: %w",
			challenge.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey{tc.TenantID, challenge.Identifier, challenge.Purpose}] = challenge
	return nil
}

// VerifyAndConsume atomically resolves a submitted code against the live
// challenge for the key. Expired and exhausted challenges are deleted before
// any comparison; a match deletes the challenge so the code can never be
// replayed; a mismatch increments the attempt counter in place.
func (s *InMemoryStore) VerifyAndConsume(ctx context.Context, identifier string, purpose models.Purpose, codeHash [32]byte, now time.Time) (models.OtpOutcome, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey{tc.TenantID, identifier, purpose}
	challenge, ok := s.challenges[key]
	if !ok {
		return models.OtpOutcomeNotFound, nil
	}
	if challenge.Expired(now) {
		delete(s.challenges, key)
		return models.OtpOutcomeExpired, nil
	}
	if challenge.Exhausted() {
		delete(s.challenges, key)
		return models.OtpOutcomeLockedOut, nil
	}
	if subtle.ConstantTimeCompare(challenge.CodeHash[:], codeHash[:]) == 1 {
		delete(s.challenges, key)
		return models.OtpOutcomeValid, nil
	}

	challenge.Attempts++
	return models.OtpOutcomeMismatch, nil
}

// Delete removes a challenge without consuming it, e.g. on administrative
// reset. Missing challenges are not an error.
func (s *InMemoryStore) Delete(ctx context.Context, identifier string, purpose models.Purpose) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, challengeKey{tc.TenantID, identifier, purpose})
	return nil
}
