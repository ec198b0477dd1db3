// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxkey defines typed context keys used by middleware and handlers.
//
// # Safety
//
// It is used to store and retrieve per-request values (request ID, logger, resolved
// identity, session accumulator). Using a private, unexported type for keys prevents
// collisions with third-party packages that might also use context for storage.
package ctxkey

// key is an unexported type used for context keys to ensure type safety.
//
// # Collision Prevention
//
// Even if another package uses "request_id" as a string key, it will not
// collide with this key type because Go's [context.Context] uses both the
// value AND the type for lookups.
type key string

const (
	// KeyRequestID is the context key for the X-Request-ID correlation value.
	KeyRequestID key = "request_id"

	// KeyLogger is the context key for the per-request [*log/slog.Logger].
	KeyLogger key = "logger"

	// KeyIdentity is the context key for the resolved identity of the request.
	KeyIdentity key = "identity"

	// KeyUserID is the context key for the mutable user id slot installed by
	// the request logger and filled once the caller is resolved.
	KeyUserID key = "user_id"

	// KeySessionState is the context key for the per-request session accumulator
	// written by the session refresher and read by the resolver.
	KeySessionState key = "session_state"
)
