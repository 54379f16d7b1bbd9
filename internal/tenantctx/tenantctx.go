// Package tenantctx carries the tenant a logical operation belongs to.
//
// The carrier rides on context.Context: each request derives its own context
// value, nested operations inherit it automatically, and nothing ever leaks
// between concurrent requests. Every tenant-scoped store call must go through
// Require so that a forgotten tenant fails loudly instead of defaulting to a
// global scope.
package tenantctx

import (
	"context"

	"keyline/pkg/domain"
	dErrors "keyline/pkg/domain-errors"
)

// TenantContext identifies the tenant the current operation runs under.
// SchemaHint is an optional storage-layer hint (e.g. a schema or shard name)
// and is never interpreted by the core itself.
type TenantContext struct {
	TenantID   domain.TenantID
	SchemaHint string
}

type ctxKey struct{}

// With returns a context that carries tc for the remainder of the logical
// operation and everything it spawns.
func With(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// From returns the ambient tenant context, if any. Non-failing read.
func From(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(TenantContext)
	if !ok || tc.TenantID.IsZero() {
		return TenantContext{}, false
	}
	return tc, true
}

// Require returns the ambient tenant context or fails with
// CodeTenantContextMissing. A tenant-scoped operation running without a
// context is a programming error, never a silent fallback.
func Require(ctx context.Context) (TenantContext, error) {
	tc, ok := From(ctx)
	if !ok {
		return TenantContext{}, dErrors.New(dErrors.CodeTenantContextMissing,
			"tenant-scoped operation invoked with no tenant context")
	}
	return tc, nil
}

// RunWith executes fn under a different tenant than the ambient one.
//
// The override is visible only inside fn: the caller's context is untouched,
// so sibling operations keep their own tenant regardless of how fn returns.
// Used for cross-tenant administrative operations.
func RunWith(ctx context.Context, tc TenantContext, fn func(ctx context.Context) error) error {
	return fn(With(ctx, tc))
}
