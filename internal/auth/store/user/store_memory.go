package user

import (
	"context"
	"fmt"
	"sync"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return sentinel.ErrConflict when a tenant-scoped uniqueness rule is violated
// - Every method resolves the tenant from the ambient context and fails with
//   the tenant-context error when it is absent

// InMemoryStore keeps users in memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[domain.TenantID]map[domain.UserID]*models.User
}

// New constructs an empty in-memory user store.
func New() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[domain.TenantID]map[domain.UserID]*models.User)}
}

func (s *InMemoryStore) Save(ctx context.Context, user *models.User) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if user.TenantID != tc.TenantID {
		return fmt.Errorf("user tenant %q does not match context tenant %q: %w",
			user.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.tenants[tc.TenantID]
	if !ok {
		users = make(map[domain.UserID]*models.User)
		s.tenants[tc.TenantID] = users
	}

	// Identifier uniqueness is scoped to the tenant.
	for id, existing := range users {
		if id == user.ID {
			continue
		}
		if (user.Email != "" && existing.Matches(user.Email)) ||
			(user.Username != "" && existing.Matches(user.Username)) {
			return fmt.Errorf("identifier already in use within tenant: %w", sentinel.ErrConflict)
		}
	}

	users[user.ID] = user
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.tenants[tc.TenantID][id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.tenants[tc.TenantID] {
		if user.Matches(identifier) {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Delete(ctx context.Context, id domain.UserID) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.tenants[tc.TenantID]
	if _, ok := users[id]; !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	delete(users, id)
	return nil
}
