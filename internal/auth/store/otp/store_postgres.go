package otp

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
)

// PostgresStore persists OTP challenges in PostgreSQL.
//
// VerifyAndConsume takes a row lock (SELECT ... FOR UPDATE) and performs the
// check, the attempt increment and the consuming delete inside one
// transaction. Racing verifies serialize on the row lock, so attempt counts
// cannot be lost and two attempts can never both consume the same challenge.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed OTP challenge store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, challenge *models.OtpChallenge) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if challenge.TenantID != tc.TenantID {
		return fmt.Errorf("challenge tenant %q does not match context tenant %q: %w",
			challenge.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (tenant_id, identifier, purpose, channel,
			code_hash, attempts, max_attempts, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, identifier, purpose) DO UPDATE SET
			channel = EXCLUDED.channel,
			code_hash = EXCLUDED.code_hash,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		challenge.TenantID.String(), challenge.Identifier, string(challenge.Purpose),
		string(challenge.Channel), challenge.CodeHash[:], challenge.Attempts,
		challenge.MaxAttempts, challenge.ExpiresAt, challenge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert otp challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyAndConsume(ctx context.Context, identifier string, purpose models.Purpose, codeHash [32]byte, now time.Time) (models.OtpOutcome, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin otp verify: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		stored      []byte
		attempts    int
		maxAttempts int
		expiresAt   time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT code_hash, attempts, max_attempts, expires_at
		FROM otp_challenges
		WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3
		FOR UPDATE`,
		tc.TenantID.String(), identifier, string(purpose),
	).Scan(&stored, &attempts, &maxAttempts, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OtpOutcomeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("load otp challenge: %w", err)
	}

	consume := func(outcome models.OtpOutcome) (models.OtpOutcome, error) {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM otp_challenges
			WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3`,
			tc.TenantID.String(), identifier, string(purpose)); err != nil {
			return "", fmt.Errorf("consume otp challenge: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit otp verify: %w", err)
		}
		return outcome, nil
	}

	if now.After(expiresAt) {
		return consume(models.OtpOutcomeExpired)
	}
	if attempts >= maxAttempts {
		return consume(models.OtpOutcomeLockedOut)
	}
	if len(stored) == 32 && subtle.ConstantTimeCompare(stored, codeHash[:]) == 1 {
		return consume(models.OtpOutcomeValid)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_challenges SET attempts = attempts + 1
		WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3`,
		tc.TenantID.String(), identifier, string(purpose)); err != nil {
		return "", fmt.Errorf("record otp attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit otp verify: %w", err)
	}
	return models.OtpOutcomeMismatch, nil
}

func (s *PostgresStore) Delete(ctx context.Context, identifier string, purpose models.Purpose) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM otp_challenges
		WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3`,
		tc.TenantID.String(), identifier, string(purpose))
	if err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges past their expiry. Expiry is enforced
// lazily at verify time; this exists only as storage housekeeping.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp challenges: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
