package authconfig

import (
	"context"
	"fmt"
	"sync"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// InMemoryStore keeps per-tenant auth configs in memory for tests and
// development. Configs are owned by tenant administration; the auth core only
// reads them, so the store surface is read plus a seeding write.
type InMemoryStore struct {
	mu      sync.RWMutex
	configs map[domain.TenantID]*models.AuthConfig
}

// New constructs an empty in-memory config store.
func New() *InMemoryStore {
	return &InMemoryStore{configs: make(map[domain.TenantID]*models.AuthConfig)}
}

// Find returns the config for the context tenant.
func (s *InMemoryStore) Find(ctx context.Context) (*models.AuthConfig, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.configs[tc.TenantID]; ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("auth config not found: %w", sentinel.ErrNotFound)
}

// Save seeds or replaces the config for the context tenant.
func (s *InMemoryStore) Save(ctx context.Context, cfg *models.AuthConfig) error {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if cfg.TenantID != tc.TenantID {
		return fmt.Errorf("config tenant %q does not match context tenant %q: %w",
			cfg.TenantID, tc.TenantID, sentinel.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[tc.TenantID] = cfg
	return nil
}
