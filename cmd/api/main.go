// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the authentication HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Ensure the bootstrap admin exists.
//  7. Wire HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haii/authcore/internal/api"
	"github.com/haii/authcore/internal/platform/config"
	"github.com/haii/authcore/internal/platform/constants"
	"github.com/haii/authcore/internal/platform/metrics"
	"github.com/haii/authcore/internal/platform/migration"
	pgstore "github.com/haii/authcore/internal/platform/postgres"
	redisstore "github.com/haii/authcore/internal/platform/redis"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/internal/users/auth"
	"github.com/haii/authcore/internal/users/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, pgstore.ServerPoolSize, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security primitives and admin bootstrap ────────────────────────
	codec, err := sec.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTL())
	must(log, err, "initialize bearer codec")
	hasher := sec.NewPasswordHasher(cfg.BcryptWorkFactor)

	store := session.NewPostgresStore(pool)
	accounts := account.NewService(account.NewPostgresRepository(pool), hasher, log)
	_, err = accounts.EnsureAdmin(startupCtx, cfg.AdminEmail, cfg.AdminPassword)
	must(log, err, "bootstrap admin")

	// ── 7. Metrics ────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	windows := session.NewWindows(nil)
	sessions := session.NewSessions(session.Policy{
		Rolling:  cfg.RollingTTL(),
		Absolute: cfg.AbsoluteTTL(),
	}, windows, nil, recorder)
	credentials := session.NewCredentials(cfg.RefreshTTL(), nil, recorder)

	authService := auth.NewService(auth.Dependencies{
		Store:       store,
		Sessions:    sessions,
		Windows:     windows,
		Credentials: credentials,
		Issuer:      auth.NewIssuer(codec, credentials),
		Hasher:      hasher,
		Limiter:     auth.NewRedisAttemptLimiter(rdb, cfg.LoginMaxFailures, cfg.LoginFailureWindow),
		Metrics:     recorder,
	})
	cookies := auth.NewCookies(cfg.SessionCookieName, cfg.SessionCookieSecure)
	resolver := auth.NewResolver(store, sessions, codec, recorder)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	server := api.NewServer(rootCtx, cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, resolver, cookies, nil),
		Refresher: auth.NewRefresher(store, sessions, cookies, nil),
		Metrics:   recorder,
	})

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String(constants.FieldApp, constants.AppName))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// Startup wiring only. After startup, errors are returned and handled.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
