package main

import (
	"context"
	"log/slog"

	"keyline/internal/auth/models"
	"keyline/internal/tenantctx"
	"keyline/pkg/domain"
)

// configWriter is satisfied by the config stores; resolution goes through
// authcfg.Store, seeding needs the write side too.
type configWriter interface {
	Save(ctx context.Context, cfg *models.AuthConfig) error
}

// seedDevTenant provisions a default "acme" tenant so a fresh dev instance
// is usable without the tenant administration service.
func seedDevTenant(ctx context.Context, log *slog.Logger, store any) {
	writer, ok := store.(configWriter)
	if !ok {
		return
	}

	tenantID := domain.TenantID("acme")
	cfg := models.DefaultAuthConfig(tenantID)
	cfg.AllowSelfRegistration = true

	err := tenantctx.RunWith(ctx, tenantctx.TenantContext{TenantID: tenantID}, func(ctx context.Context) error {
		return writer.Save(ctx, cfg)
	})
	if err != nil {
		log.Warn("dev tenant seed failed", "tenant_id", tenantID.String(), "error", err)
		return
	}
	log.Info("seeded dev tenant", "tenant_id", tenantID.String())
}
