package session

import (
	"context"
	"fmt"
	"sync"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// InMemoryStore keeps sessions in memory for tests and development.
//
// Token-addressed reads and deletes are deliberately not tenant-scoped: the
// token is unguessable and globally unique, and the stored row itself carries
// the tenant, so a lookup-by-token resolves tenant scope without a second
// round trip. Writes and user-addressed deletes require the tenant context.
type InMemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]*models.Session
}

// New constructs an empty in-memory session store.
func New() *InMemoryStore {
	return &InMemoryStore{byToken: make(map[string]*models.Session)}
}

func (s *InMemoryStore) Create(ctx context.Context, session *models.Session) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if session.TenantID != tc.TenantID {
		return fmt.Errorf("session tenant %q does not match context tenant %q: %w",
			session.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[session.Token]; ok {
		return fmt.Errorf("session token already exists: %w", sentinel.ErrConflict)
	}
	s.byToken[session.Token] = session
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, ok := s.byToken[token]; ok {
		return session, nil
	}
	return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[token]; !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	delete(s.byToken, token)
	return nil
}

// DeleteByUser removes every session for the user within the context tenant
// only. The tenant is part of the predicate: the same user ID under another
// tenant keeps its sessions.
func (s *InMemoryStore) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for token, session := range s.byToken {
		if session.UserID == userID && session.TenantID == tc.TenantID {
			delete(s.byToken, token)
			deleted++
		}
	}
	return deleted, nil
}
