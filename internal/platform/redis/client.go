// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis provides the client behind the failed-login counters.

Each counter is a single INCR plus EXPIRE under
[constants.RedisPrefixLoginFailures], so the pool is sized for many short
round-trips rather than large payloads. Browser sessions are never cached
here: PostgreSQL stays the single source of truth for session state.

A Redis outage degrades login throttling only. Readiness reports it so the
orchestrator can react, but session validation never touches this client.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haii/authcore/internal/platform/constants"
)

// Timeouts and pool sizing for the limiter workload.
const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 500 * time.Millisecond
	writeTimeout = 500 * time.Millisecond
	pingTimeout  = 2 * time.Second

	poolSize     = 8
	minIdleConns = 2

	// clientName shows up in CLIENT LIST so operators can tell limiter
	// connections apart on a shared instance.
	clientName = constants.AppName + ":login_limiter"
)

/*
NewClient parses a Redis URL, pings it and returns a client tuned for the
failed-login counters.

Parameters:
  - context: stdctx.Context (bounds the initial ping)
  - redisURL: string
  - logger: *slog.Logger

Returns:
  - *redis.Client: Connected client
  - error: Parse or connectivity failures
*/
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis_client_parse_url_failed: %w", err)
	}

	options.ClientName = clientName
	options.PoolSize = poolSize
	options.MinIdleConns = minIdleConns
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.String("purpose", "login_limiter"),
		slog.String("key_prefix", constants.RedisPrefixLoginFailures),
	)

	return client, nil
}

// Ping verifies that the limiter backend answers within pingTimeout.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis_client_ping_failed: %w", err)
	}
	return nil
}
