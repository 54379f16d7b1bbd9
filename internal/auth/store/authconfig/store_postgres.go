package authconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
)

// PostgresStore reads per-tenant auth configs from PostgreSQL. The config
// document is stored as a single JSONB column: the admin surface that writes
// it lives outside the auth core, and a closed Go structure validated on read
// keeps the core from probing dynamic fields.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed config store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// configJSON is the persisted document shape.
type configJSON struct {
	Methods               map[string][]string `json:"methods"`
	OtpCodeLength         int                 `json:"otp_code_length"`
	OtpExpirySeconds      int                 `json:"otp_expiry_seconds"`
	OtpMaxAttempts        int                 `json:"otp_max_attempts"`
	PasswordMinLength     int                 `json:"password_min_length"`
	SessionTTLSeconds     int                 `json:"session_ttl_seconds"`
	AllowSelfRegistration bool                `json:"allow_self_registration"`
	RequireMFA            bool                `json:"require_mfa"`
}

func (s *PostgresStore) Find(ctx context.Context) (*models.AuthConfig, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	var (
		doc       []byte
		updatedAt time.Time
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT config, updated_at FROM auth_configs WHERE tenant_id = $1`,
		tc.TenantID.String(),
	).Scan(&doc, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auth config not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find auth config: %w", err)
	}

	var stored configJSON
	if err := json.Unmarshal(doc, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal auth config: %w", err)
	}

	cfg := &models.AuthConfig{
		TenantID: tc.TenantID,
		Methods:  make(map[models.IdentifierClass][]models.AuthMethod, len(stored.Methods)),
		Otp: models.OtpPolicy{
			CodeLength:  stored.OtpCodeLength,
			Expiry:      time.Duration(stored.OtpExpirySeconds) * time.Second,
			MaxAttempts: stored.OtpMaxAttempts,
		}.Normalized(),
		Password:              models.PasswordPolicy{MinLength: stored.PasswordMinLength}.Normalized(),
		SessionTTL:            time.Duration(stored.SessionTTLSeconds) * time.Second,
		AllowSelfRegistration: stored.AllowSelfRegistration,
		RequireMFA:            stored.RequireMFA,
		UpdatedAt:             updatedAt,
	}
	for class, methods := range stored.Methods {
		for _, m := range methods {
			switch models.AuthMethod(m) {
			case models.MethodPassword, models.MethodOTP:
				cfg.Methods[models.IdentifierClass(class)] = append(
					cfg.Methods[models.IdentifierClass(class)], models.AuthMethod(m))
			default:
				return nil, fmt.Errorf("unknown auth method %q in config: %w", m, sentinel.ErrInvalidState)
			}
		}
	}
	return cfg, nil
}

// Save writes a config document; used by seeding and tests. The production
// writer is the tenant administration service.
func (s *PostgresStore) Save(ctx context.Context, cfg *models.AuthConfig) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if cfg.TenantID != tc.TenantID {
		return fmt.Errorf("config tenant %q does not match context tenant %q: %w",
			cfg.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	stored := configJSON{
		Methods:               make(map[string][]string, len(cfg.Methods)),
		OtpCodeLength:         cfg.Otp.CodeLength,
		OtpExpirySeconds:      int(cfg.Otp.Expiry / time.Second),
		OtpMaxAttempts:        cfg.Otp.MaxAttempts,
		PasswordMinLength:     cfg.Password.MinLength,
		SessionTTLSeconds:     int(cfg.SessionTTL / time.Second),
		AllowSelfRegistration: cfg.AllowSelfRegistration,
		RequireMFA:            cfg.RequireMFA,
	}
	for class, methods := range cfg.Methods {
		for _, m := range methods {
			stored.Methods[string(class)] = append(stored.Methods[string(class)], string(m))
		}
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal auth config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_configs (tenant_id, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at`,
		tc.TenantID.String(), doc, time.Now())
	if err != nil {
		return fmt.Errorf("save auth config: %w", err)
	}
	return nil
}
