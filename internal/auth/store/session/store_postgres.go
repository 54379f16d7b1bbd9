package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// PostgresStore persists sessions in PostgreSQL. See InMemoryStore for the
// token-addressed vs tenant-scoped split.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if session.TenantID != tc.TenantID {
		return fmt.Errorf("session tenant %q does not match context tenant %q: %w",
			session.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, tenant_id, token, auth_method,
			expires_at, created_at, ip_address, user_agent, device_display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(session.ID), uuid.UUID(session.UserID), session.TenantID.String(),
		session.Token, string(session.AuthMethod), session.ExpiresAt, session.CreatedAt,
		nullString(session.IPAddress), nullString(session.UserAgent),
		nullString(session.DeviceDisplayName),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("session token already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var (
		session          models.Session
		id, userID       uuid.UUID
		tenantID, method string
		ip, ua, deviceDN sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, token, auth_method, expires_at,
			created_at, ip_address, user_agent, device_display_name
		FROM sessions WHERE token = $1`, token,
	).Scan(&id, &userID, &tenantID, &session.Token, &method, &session.ExpiresAt,
		&session.CreatedAt, &ip, &ua, &deviceDN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	session.ID = domain.SessionID(id)
	session.UserID = domain.UserID(userID)
	session.TenantID = domain.TenantID(tenantID)
	session.AuthMethod = models.AuthMethod(method)
	session.IPAddress = ip.String
	session.UserAgent = ua.String
	session.DeviceDisplayName = deviceDN.String
	return &session, nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND tenant_id = $2`,
		uuid.UUID(userID), tc.TenantID.String())
	if err != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
