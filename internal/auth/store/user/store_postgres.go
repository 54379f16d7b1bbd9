package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// PostgresStore persists users in PostgreSQL. Every statement carries the
// context tenant in its predicate so a query can never cross tenants.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, user *models.User) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if user.TenantID != tc.TenantID {
		return fmt.Errorf("user tenant %q does not match context tenant %q: %w",
			user.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("marshal user roles: %w", err)
	}
	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("marshal user metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, username, password_hash,
			email_verified, phone_verified, roles, is_super_admin, metadata,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			email_verified = EXCLUDED.email_verified,
			phone_verified = EXCLUDED.phone_verified,
			roles = EXCLUDED.roles,
			is_super_admin = EXCLUDED.is_super_admin,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		WHERE users.tenant_id = EXCLUDED.tenant_id`,
		uuid.UUID(user.ID), user.TenantID.String(), user.Email, nullString(user.Username),
		nullString(user.PasswordHash), user.EmailVerified, user.PhoneVerified, roles,
		user.IsSuperAdmin, metadata, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identifier already in use within tenant: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1 AND tenant_id = $2`,
		uuid.UUID(id), tc.TenantID.String())
	return scanUser(row)
}

func (s *PostgresStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, selectUser+`
		WHERE tenant_id = $2 AND (lower(email) = lower($1) OR username = $1)`,
		identifier, tc.TenantID.String())
	return scanUser(row)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.UserID) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1 AND tenant_id = $2`,
		uuid.UUID(id), tc.TenantID.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

const selectUser = `
	SELECT id, tenant_id, email, username, password_hash, email_verified,
		phone_verified, roles, is_super_admin, metadata, created_at, updated_at
	FROM users`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user     models.User
		id       uuid.UUID
		tenantID string
		username sql.NullString
		hash     sql.NullString
		roles    []byte
		metadata []byte
	)
	err := row.Scan(&id, &tenantID, &user.Email, &username, &hash,
		&user.EmailVerified, &user.PhoneVerified, &roles, &user.IsSuperAdmin,
		&metadata, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.ID = domain.UserID(id)
	user.TenantID = domain.TenantID(tenantID)
	user.Username = username.String
	user.PasswordHash = hash.String
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &user.Roles); err != nil {
			return nil, fmt.Errorf("unmarshal user roles: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal user metadata: %w", err)
		}
	}
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
