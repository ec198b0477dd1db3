// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haii/authcore/internal/platform/constants"
)

// AttemptLimiter counts failed logins per key and reports lockout.
type AttemptLimiter interface {

	/*
		Blocked reports whether key has reached the failure limit.

		Returns:
		  - bool: Whether further attempts must be refused
		  - error: Backend failures
	*/
	Blocked(context context.Context, key string) (bool, error)

	/*
		RecordFailure counts one failed attempt. The counting window starts at
		the first failure.

		Returns:
		  - error: Backend failures
	*/
	RecordFailure(context context.Context, key string) error

	/*
		Reset forgets every failure recorded for key.

		Returns:
		  - error: Backend failures
	*/
	Reset(context context.Context, key string) error
}

// RedisAttemptLimiter implements [AttemptLimiter] with one expiring counter per
// key.
type RedisAttemptLimiter struct {
	client      *redis.Client
	maxFailures int64
	window      time.Duration
}

// NewRedisAttemptLimiter constructs the limiter. A non-positive maxFailures
// disables it.
func NewRedisAttemptLimiter(client *redis.Client, maxFailures int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{client: client, maxFailures: int64(maxFailures), window: window}
}

/*
Blocked reads the counter for key.

Parameters:
  - context: context.Context
  - key: string (normalised email)

Returns:
  - bool: Whether the limit has been reached
  - error: Connectivity errors
*/
func (limiter *RedisAttemptLimiter) Blocked(context context.Context, key string) (bool, error) {
	if limiter.maxFailures <= 0 {
		return false, nil
	}

	count, err := limiter.client.Get(context, limiterKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_login_limiter_get_failed: %w", err)
	}
	return count >= limiter.maxFailures, nil
}

/*
RecordFailure increments the counter and sets its expiry on the first failure.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - error: Connectivity errors
*/
func (limiter *RedisAttemptLimiter) RecordFailure(context context.Context, key string) error {
	if limiter.maxFailures <= 0 {
		return nil
	}

	redisKey := limiterKey(key)
	_, err := limiter.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Incr(context, redisKey)
		pipe.ExpireNX(context, redisKey, limiter.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_login_limiter_incr_failed: %w", err)
	}
	return nil
}

/*
Reset deletes the counter after a successful login.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - error: Deletion failures
*/
func (limiter *RedisAttemptLimiter) Reset(context context.Context, key string) error {
	if limiter.maxFailures <= 0 {
		return nil
	}

	if err := limiter.client.Del(context, limiterKey(key)).Err(); err != nil {
		return fmt.Errorf("redis_login_limiter_reset_failed: %w", err)
	}
	return nil
}

func limiterKey(key string) string {
	return constants.RedisPrefixLoginFailures + key
}
