package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// RedisStore persists sessions in Redis. The session itself lives under its
// token key with a TTL matching its expiry; a per-(tenant, user) set indexes
// tokens so tenant-scoped bulk revocation does not scan the keyspace.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// sessionJSON is the serialized representation of a Session.
type sessionJSON struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	TenantID          string `json:"tenant_id"`
	Token             string `json:"token"`
	AuthMethod        string `json:"auth_method"`
	ExpiresAt         int64  `json:"expires_at"` // Unix seconds
	CreatedAt         int64  `json:"created_at"` // Unix seconds
	IPAddress         string `json:"ip_address,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
	DeviceDisplayName string `json:"device_display_name,omitempty"`
}

func userSessionsKey(tenant domain.TenantID, userID domain.UserID) string {
	return userSessionKeyPrefix + tenant.String() + ":" + userID.String()
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if session.TenantID != tc.TenantID {
		return fmt.Errorf("session tenant %q does not match context tenant %q: %w",
			session.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	payload, err := json.Marshal(sessionJSON{
		ID:                session.ID.String(),
		UserID:            session.UserID.String(),
		TenantID:          session.TenantID.String(),
		Token:             session.Token,
		AuthMethod:        string(session.AuthMethod),
		ExpiresAt:         session.ExpiresAt.Unix(),
		CreatedAt:         session.CreatedAt.Unix(),
		IPAddress:         session.IPAddress,
		UserAgent:         session.UserAgent,
		DeviceDisplayName: session.DeviceDisplayName,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %w", sentinel.ErrInvalidInput)
	}

	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, sessionKeyPrefix+session.Token, payload, ttl)
	pipe.SAdd(ctx, userSessionsKey(tc.TenantID, session.UserID), session.Token)
	pipe.Expire(ctx, userSessionsKey(tc.TenantID, session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w: %v", sentinel.ErrUnavailable, err)
	}

	var stored sessionJSON
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return storedToSession(&stored)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete session: %w: %v", sentinel.ErrUnavailable, err)
	}

	var stored sessionJSON
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+token)
	if err := json.Unmarshal(data, &stored); err == nil {
		pipe.SRem(ctx, userSessionKeyPrefix+stored.TenantID+":"+stored.UserID, token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return 0, err
	}

	indexKey := userSessionsKey(tc.TenantID, userID)
	tokens, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w: %v", sentinel.ErrUnavailable, err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKeyPrefix+token)
	}
	keys = append(keys, indexKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete user sessions: %w: %v", sentinel.ErrUnavailable, err)
	}
	return len(tokens), nil
}

func storedToSession(stored *sessionJSON) (*models.Session, error) {
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	userID, err := uuid.Parse(stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse session user id: %w", err)
	}
	return &models.Session{
		ID:                domain.SessionID(id),
		UserID:            domain.UserID(userID),
		TenantID:          domain.TenantID(stored.TenantID),
		Token:             stored.Token,
		AuthMethod:        models.AuthMethod(stored.AuthMethod),
		ExpiresAt:         time.Unix(stored.ExpiresAt, 0),
		CreatedAt:         time.Unix(stored.CreatedAt, 0),
		IPAddress:         stored.IPAddress,
		UserAgent:         stored.UserAgent,
		DeviceDisplayName: stored.DeviceDisplayName,
	}, nil
}
