package otp

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

const (
	challengeKeyPrefix = "otp:"

	// verifyRetries bounds the optimistic WATCH loop. Contention on a single
	// (tenant, identifier, purpose) key is human-driven and tiny; exhausting
	// the retries means something is systematically wrong.
	verifyRetries = 4
)

// RedisStore persists OTP challenges in Redis.
//
// VerifyAndConsume uses a WATCH/MULTI optimistic transaction so the
// check-increment-delete sequence commits only if no concurrent writer
// touched the key. A concurrent consume aborts the transaction and the loop
// re-reads, so two racing verifies can never both observe a valid outcome.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed OTP challenge store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// challengeJSON is the serialized representation of an OtpChallenge.
type challengeJSON struct {
	CodeHash    string `json:"code_hash"` // base64
	Channel     string `json:"channel"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	ExpiresAt   int64  `json:"expires_at"` // Unix seconds
	CreatedAt   int64  `json:"created_at"` // Unix seconds
}

func challengeRedisKey(tenant domain.TenantID, identifier string, purpose models.Purpose) string {
	return challengeKeyPrefix + tenant.String() + ":" + string(purpose) + ":" + identifier
}

func (s *RedisStore) Upsert(ctx context.Context, challenge *models.OtpChallenge) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if challenge.TenantID != tc.TenantID {
		return fmt.Errorf("challenge tenant %q does not match context tenant %q: %w",
			challenge.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	payload, err := json.Marshal(challengeJSON{
		CodeHash:    base64.StdEncoding.EncodeToString(challenge.CodeHash[:]),
		Channel:     string(challenge.Channel),
		Attempts:    challenge.Attempts,
		MaxAttempts: challenge.MaxAttempts,
		ExpiresAt:   challenge.ExpiresAt.Unix(),
		CreatedAt:   challenge.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal otp challenge: %w", err)
	}

	// Key TTL outlives logical expiry slightly so a late verify still gets a
	// deterministic Expired outcome instead of NotFound.
	ttl := time.Until(challenge.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}

	key := challengeRedisKey(tc.TenantID, challenge.Identifier, challenge.Purpose)
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store otp challenge: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) VerifyAndConsume(ctx context.Context, identifier string, purpose models.Purpose, codeHash [32]byte, now time.Time) (models.OtpOutcome, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return "", err
	}

	key := challengeRedisKey(tc.TenantID, identifier, purpose)

	for i := 0; i < verifyRetries; i++ {
		var outcome models.OtpOutcome

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				outcome = models.OtpOutcomeNotFound
				return nil
			}
			if err != nil {
				return err
			}

			var stored challengeJSON
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("unmarshal otp challenge: %w", err)
			}
			storedHash, err := base64.StdEncoding.DecodeString(stored.CodeHash)
			if err != nil {
				return fmt.Errorf("decode otp code hash: %w", err)
			}

			del := func() error {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			switch {
			case now.Unix() > stored.ExpiresAt:
				outcome = models.OtpOutcomeExpired
				return del()
			case stored.Attempts >= stored.MaxAttempts:
				outcome = models.OtpOutcomeLockedOut
				return del()
			case len(storedHash) == 32 && subtle.ConstantTimeCompare(storedHash, codeHash[:]) == 1:
				outcome = models.OtpOutcomeValid
				return del()
			}

			stored.Attempts++
			updated, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal otp challenge: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}
			outcome = models.OtpOutcomeMismatch
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // concurrent writer touched the key, re-read
		}
		if err != nil {
			return "", fmt.Errorf("verify otp challenge: %w: %v", sentinel.ErrUnavailable, err)
		}
		return outcome, nil
	}

	return "", fmt.Errorf("verify otp challenge: retries exhausted: %w", sentinel.ErrUnavailable)
}

func (s *RedisStore) Delete(ctx context.Context, identifier string, purpose models.Purpose) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	key := challengeRedisKey(tc.TenantID, identifier, purpose)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}
