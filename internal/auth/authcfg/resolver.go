// Package authcfg resolves per-tenant authentication policy.
package authcfg

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

const defaultCacheTTL = 30 * time.Second

// Store is the persistence interface for tenant auth configs.
type Store interface {
	Find(ctx context.Context) (*models.AuthConfig, error)
}

type cacheEntry struct {
	cfg       *models.AuthConfig
	fetchedAt time.Time
}

// Resolver caches tenant configs for a short TTL and collapses concurrent
// fetches for the same tenant into one store read. Config reads happen on
// every authentication request, so this keeps the adapter off the hot path
// without letting policy changes lag more than the TTL.
type Resolver struct {
	store    Store
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[domain.TenantID]cacheEntry
	group singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL overrides the default 30s cache lifetime. Zero disables
// caching entirely.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New constructs a Resolver backed by the given store.
func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
		cache:    make(map[domain.TenantID]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the auth config for the context tenant. An unknown tenant
// is a CodeTenantNotFound domain error; adapter failures surface as
// CodeUnavailable and are never cached.
func (r *Resolver) Resolve(ctx context.Context) (*models.AuthConfig, error) {
	tc, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	if r.cacheTTL > 0 {
		r.mu.RLock()
		entry, ok := r.cache[tc.TenantID]
		r.mu.RUnlock()
		if ok && r.now().Sub(entry.fetchedAt) < r.cacheTTL {
			return entry.cfg, nil
		}
	}

	v, err, _ := r.group.Do(tc.TenantID.String(), func() (any, error) {
		cfg, err := r.store.Find(ctx)
		if err != nil {
			return nil, err
		}
		if r.cacheTTL > 0 {
			r.mu.Lock()
			r.cache[tc.TenantID] = cacheEntry{cfg: cfg, fetchedAt: r.now()}
			r.mu.Unlock()
		}
		return cfg, nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTenantNotFound, "unknown tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not load tenant config")
	}
	return v.(*models.AuthConfig), nil
}

// Invalidate drops the cached config for a tenant, forcing the next Resolve
// to hit the store.
func (r *Resolver) Invalidate(tenantID domain.TenantID) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.mu.Unlock()
}
