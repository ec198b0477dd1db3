// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haii/authcore/internal/users/auth"
	"github.com/haii/authcore/pkg/uuid"
)

func TestRedisAttemptLimiter_DisabledNeverTouchesRedis(t *testing.T) {
	limiter := auth.NewRedisAttemptLimiter(nil, 0, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, "ada@example.com"))
	blocked, err := limiter.Blocked(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, blocked)
	require.NoError(t, limiter.Reset(ctx, "ada@example.com"))
}

// Runs only when HAII_TEST_REDIS_URL points at a disposable Redis.
func TestRedisAttemptLimiter_CountsAndResets(t *testing.T) {
	url := os.Getenv("HAII_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HAII_TEST_REDIS_URL not set")
	}

	options, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(options)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := uuid.New() + "@example.com"
	limiter := auth.NewRedisAttemptLimiter(client, 2, time.Minute)

	for range 2 {
		blocked, err := limiter.Blocked(ctx, key)
		require.NoError(t, err)
		assert.False(t, blocked)
		require.NoError(t, limiter.RecordFailure(ctx, key))
	}

	blocked, err := limiter.Blocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, blocked)

	ttl, err := client.TTL(ctx, "auth:login_failures:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, limiter.Reset(ctx, key))
	blocked, err = limiter.Blocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, blocked)
}
