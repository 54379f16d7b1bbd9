// Command server wires the authentication core behind an HTTP API. Business
// logic lives in the internal packages; main only assembles dependencies and
// owns the server lifecycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keyline/internal/auth/authcfg"
	"keyline/internal/auth/delivery"
	"keyline/internal/auth/handler"
	"keyline/internal/auth/otp"
	"keyline/internal/auth/password"
	"keyline/internal/auth/service"
	"keyline/internal/auth/session"
	authconfigstore "keyline/internal/auth/store/authconfig"
	otpstore "keyline/internal/auth/store/otp"
	sessionstore "keyline/internal/auth/store/session"
	userstore "keyline/internal/auth/store/user"
	"keyline/internal/platform/config"
	"keyline/internal/platform/database"
	"keyline/internal/platform/logger"
	"keyline/internal/platform/metrics"
	"keyline/internal/platform/middleware"
	"keyline/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("initializing keyline",
		"addr", cfg.Addr,
		"dev_mode", cfg.DevMode,
	)

	ctx := context.Background()

	db, err := database.Open(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	rdb, err := redis.Open(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	// Store selection: PostgreSQL when configured, Redis for the hot
	// challenge/session paths when available, in-memory otherwise.
	var (
		users    service.UserStore
		otpSt    otp.Store
		sessSt   session.Store
		configSt authcfg.Store
	)
	switch {
	case db != nil:
		users = userstore.NewPostgres(db)
		configSt = authconfigstore.NewPostgres(db)
		if rdb != nil {
			otpSt = otpstore.NewRedis(rdb)
			sessSt = sessionstore.NewRedis(rdb)
		} else {
			otpSt = otpstore.NewPostgres(db)
			sessSt = sessionstore.NewPostgres(db)
		}
	default:
		log.Warn("no database configured, using in-memory stores")
		users = userstore.New()
		configSt = authconfigstore.New()
		otpSt = otpstore.New()
		sessSt = sessionstore.New()
	}

	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		log.Error("hasher init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	engine := otp.New(otpSt, otp.WithLogger(log))
	issuer := session.New(sessSt, session.WithLogger(log), session.WithTTL(cfg.SessionTTL))
	resolver := authcfg.New(configSt, authcfg.WithCacheTTL(cfg.ConfigCacheTTL))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithSender(delivery.NewLogSender(log)),
	}
	if cfg.DevMode {
		opts = append(opts, service.WithDebugEcho())
		seedDevTenant(ctx, log, configSt)
	}

	svc, err := service.New(users, engine, issuer, resolver, hasher, opts...)
	if err != nil {
		log.Error("service init failed", "error", err)
		os.Exit(1)
	}

	authHandler := handler.New(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	authHandler.Register(r)
	authHandler.RegisterAdmin(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
