// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haii/authcore/internal/platform/ctxkey"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}

// # Caller Identity

// userSlot is written by inner middleware and read by the outer request logger
// after the handler returns.
type userSlot struct {
	mutex sync.Mutex
	id    string
}

// WithUserSlot returns a context carrying an empty user id slot.
func WithUserSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxkey.KeyUserID, &userSlot{})
}

// SetUserID records the resolved user id. It is a no-op without a slot.
func SetUserID(ctx context.Context, id string) {
	slot, ok := ctx.Value(ctxkey.KeyUserID).(*userSlot)
	if !ok {
		return
	}
	slot.mutex.Lock()
	slot.id = id
	slot.mutex.Unlock()
}

// GetUserID returns the recorded user id, or an empty string.
func GetUserID(ctx context.Context) string {
	slot, ok := ctx.Value(ctxkey.KeyUserID).(*userSlot)
	if !ok {
		return ""
	}
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	return slot.id
}
