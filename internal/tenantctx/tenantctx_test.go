package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
	"keyline/pkg/testutil"
)

func TestRequire_MissingContextFails(t *testing.T) {
	_, err := Require(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantContextMissing))
}

func TestRequire_ReturnsAmbientTenant(t *testing.T) {
	ctx := With(context.Background(), TenantContext{TenantID: "acme", SchemaHint: "shard_3"})

	tc, err := Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantID("acme"), tc.TenantID)
	assert.Equal(t, "shard_3", tc.SchemaHint)
}

func TestFrom_ZeroTenantIDReportsAbsent(t *testing.T) {
	ctx := With(context.Background(), TenantContext{})

	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestWith_NestedOperationsInherit(t *testing.T) {
	ctx := With(context.Background(), TenantContext{TenantID: "acme"})

	nested := context.WithValue(ctx, struct{ k string }{"unrelated"}, "value")
	tc, err := Require(nested)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantID("acme"), tc.TenantID)
}

func TestRunWith_OverrideVisibleOnlyInsideFn(t *testing.T) {
	ctx := With(context.Background(), TenantContext{TenantID: "acme"})

	err := RunWith(ctx, TenantContext{TenantID: "globex"}, func(inner context.Context) error {
		tc, err := Require(inner)
		require.NoError(t, err)
		assert.Equal(t, domain.TenantID("globex"), tc.TenantID)
		return nil
	})
	require.NoError(t, err)

	// The caller's context keeps its own tenant.
	tc, err := Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantID("acme"), tc.TenantID)
}

func TestWith_ConcurrentOperationsDoNotLeak(t *testing.T) {
	base := context.Background()
	tenants := []domain.TenantID{"acme", "globex", "initech", "umbrella"}

	successes, errs := testutil.RunConcurrentCollect(100, func(idx int) error {
		want := tenants[idx%len(tenants)]
		ctx := With(base, TenantContext{TenantID: want})

		tc, err := Require(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, want, tc.TenantID)
		return nil
	})
	require.Empty(t, errs)
	assert.Equal(t, int32(100), successes)
}
