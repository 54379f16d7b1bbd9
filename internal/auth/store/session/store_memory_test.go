package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyline/internal/auth/models"
	"keyline/internal/sentinel"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

func newSession(tenant domain.TenantID, userID domain.UserID, token string) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:         domain.NewSessionID(),
		UserID:     userID,
		TenantID:   tenant,
		Token:      token,
		AuthMethod: models.MethodPassword,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	}
}

func TestCreate_RequiresTenantContext(t *testing.T) {
	store := New()

	err := store.Create(context.Background(), newSession("acme", domain.NewUserID(), "tok-1"))
	require.Error(t, err)
}

func TestCreateAndFindByToken(t *testing.T) {
	store := New()
	ctx := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "acme"})
	session := newSession("acme", domain.NewUserID(), "tok-1")

	require.NoError(t, store.Create(ctx, session))

	// Token lookup does not need a tenant context; the row carries the tenant.
	found, err := store.FindByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, domain.TenantID("acme"), found.TenantID)
}

func TestCreate_DuplicateTokenConflicts(t *testing.T) {
	store := New()
	ctx := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "acme"})

	require.NoError(t, store.Create(ctx, newSession("acme", domain.NewUserID(), "tok-1")))

	err := store.Create(ctx, newSession("acme", domain.NewUserID(), "tok-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestDelete_UnknownTokenIsNotFound(t *testing.T) {
	store := New()

	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteByUser_ScopedToContextTenant(t *testing.T) {
	store := New()
	userID := domain.NewUserID()
	acme := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "acme"})
	globex := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "globex"})

	require.NoError(t, store.Create(acme, newSession("acme", userID, "tok-a1")))
	require.NoError(t, store.Create(acme, newSession("acme", userID, "tok-a2")))
	// Same user ID under another tenant.
	require.NoError(t, store.Create(globex, newSession("globex", userID, "tok-g1")))

	deleted, err := store.DeleteByUser(acme, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// The other tenant's session survives.
	_, err = store.FindByToken(context.Background(), "tok-g1")
	require.NoError(t, err)

	_, err = store.FindByToken(context.Background(), "tok-a1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
