package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyline/internal/auth/models"
	"keyline/internal/auth/session"
	sessionstore "keyline/internal/auth/store/session"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

func acmeCtx() context.Context {
	return tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "acme"})
}

func acmeUser() *models.User {
	return &models.User{
		ID:       domain.NewUserID(),
		TenantID: "acme",
		Email:    "alice@acme.test",
	}
}

func TestCreate_MintsOpaqueToken(t *testing.T) {
	issuer := session.New(sessionstore.New())
	ctx := acmeCtx()

	sess, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, time.Hour, session.Metadata{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.Token)
	assert.GreaterOrEqual(t, len(sess.Token), 40, "token encodes 32 random bytes")
	assert.Equal(t, domain.TenantID("acme"), sess.TenantID)
	assert.Equal(t, models.MethodPassword, sess.AuthMethod)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
	assert.Contains(t, sess.DeviceDisplayName, "Chrome")

	// Two sessions never share a token.
	other, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, time.Hour, session.Metadata{})
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, other.Token)
}

func TestCreate_RejectsCrossTenantUser(t *testing.T) {
	issuer := session.New(sessionstore.New())
	ctx := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "globex"})

	_, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, time.Hour, session.Metadata{})
	require.Error(t, err)
}

func TestValidate_ResolvesLiveSession(t *testing.T) {
	issuer := session.New(sessionstore.New())
	ctx := acmeCtx()
	user := acmeUser()

	sess, err := issuer.Create(ctx, user, models.MethodOTP, time.Hour, session.Metadata{})
	require.NoError(t, err)

	// Validation is token-addressed and needs no tenant context.
	found, err := issuer.Validate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
	assert.Equal(t, user.ID, found.UserID)
}

func TestValidate_UnknownTokenIsNotFound(t *testing.T) {
	issuer := session.New(sessionstore.New())

	_, err := issuer.Validate(context.Background(), "no-such-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = issuer.Validate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestValidate_ExpiredSessionIsLazilyDeleted(t *testing.T) {
	store := sessionstore.New()
	now := time.Now()
	clock := now
	issuer := session.New(store, session.WithClock(func() time.Time { return clock }))
	ctx := acmeCtx()

	sess, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, time.Hour, session.Metadata{})
	require.NoError(t, err)

	clock = now.Add(2 * time.Hour)
	_, err = issuer.Validate(context.Background(), sess.Token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// Deleted from the store, not just masked.
	_, err = store.FindByToken(context.Background(), sess.Token)
	require.Error(t, err)
}

func TestRevoke_IsIdempotent(t *testing.T) {
	issuer := session.New(sessionstore.New())
	ctx := acmeCtx()

	sess, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, time.Hour, session.Metadata{})
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(context.Background(), sess.Token))
	require.NoError(t, issuer.Revoke(context.Background(), sess.Token), "second revoke succeeds")
	require.NoError(t, issuer.Revoke(context.Background(), "never-existed"))

	_, err = issuer.Validate(context.Background(), sess.Token)
	require.Error(t, err)
}

func TestRevokeAll_ScopedToContextTenant(t *testing.T) {
	issuer := session.New(sessionstore.New())
	acme := acmeCtx()
	globex := tenantctx.With(context.Background(), tenantctx.TenantContext{TenantID: "globex"})

	user := acmeUser()
	twin := &models.User{ID: user.ID, TenantID: "globex", Email: user.Email}

	_, err := issuer.Create(acme, user, models.MethodPassword, time.Hour, session.Metadata{})
	require.NoError(t, err)
	_, err = issuer.Create(acme, user, models.MethodOTP, time.Hour, session.Metadata{})
	require.NoError(t, err)
	twinSess, err := issuer.Create(globex, twin, models.MethodPassword, time.Hour, session.Metadata{})
	require.NoError(t, err)

	deleted, err := issuer.RevokeAll(acme, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// The reused user ID under the other tenant is untouched.
	_, err = issuer.Validate(context.Background(), twinSess.Token)
	require.NoError(t, err)
}

func TestCreate_ZeroTTLUsesIssuerDefault(t *testing.T) {
	now := time.Now()
	issuer := session.New(sessionstore.New(),
		session.WithTTL(30*time.Minute),
		session.WithClock(func() time.Time { return now }),
	)
	ctx := acmeCtx()

	sess, err := issuer.Create(ctx, acmeUser(), models.MethodPassword, 0, session.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), sess.ExpiresAt)
}
