// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth resolves who is calling and manages the credentials handed out at
login.

# Architecture

  - [Refresher]: Per-request middleware. Validates the session cookie once,
    stashes the result for the resolver and re-stamps or clears the cookie on
    the way out.
  - [Resolver]: Reconciles the bearer credential with the cookie candidate and
    exposes RequireAuth, OptionalAuth and RequireRole middleware.
  - [Issuer]: Mints the bearer credential and, for non-guests, a refresh secret.
  - [Service]: Login, registration, guest entry, refresh and logout flows, each
    in exactly one store transaction.
  - [Handler]: JSON transport for the flows above.

Every identity failure reaches the client as the same 401 "Invalid credentials"
body; the error code is the only thing that varies.
*/
package auth

import (
	"context"

	"github.com/haii/authcore/internal/platform/ctxkey"
	"github.com/haii/authcore/internal/platform/ctxutil"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
)

// # Identity Context

// IdentityContext is the resolved caller of a request.
type IdentityContext struct {
	Identity  *account.Identity
	SessionID string
	WindowID  string

	// Claims is set when the identity came from a bearer credential.
	Claims *sec.AuthClaims
}

// ID returns the identity id.
func (identity *IdentityContext) ID() string {
	return identity.Identity.ID
}

// Role returns the identity role.
func (identity *IdentityContext) Role() sec.UserRole {
	return identity.Identity.Role
}

// Guest reports whether the caller is a guest.
func (identity *IdentityContext) Guest() bool {
	return identity.Identity.IsGuest
}

// WithIdentity attaches the resolved identity to the context and records its
// id for the request log.
func WithIdentity(ctx context.Context, identity *IdentityContext) context.Context {
	if identity != nil {
		ctxutil.SetUserID(ctx, identity.ID())
	}
	return context.WithValue(ctx, ctxkey.KeyIdentity, identity)
}

// FromContext returns the identity attached by [Resolver.RequireAuth] or
// [Resolver.OptionalAuth].
func FromContext(ctx context.Context) (*IdentityContext, bool) {
	identity, ok := ctx.Value(ctxkey.KeyIdentity).(*IdentityContext)
	return identity, ok && identity != nil
}

// # Request State

// requestState is the accumulator the refresher threads through a request.
// Handlers run on the request goroutine, so no locking is needed.
type requestState struct {
	cookie     *IdentityContext
	skipCookie bool
}

func withState(ctx context.Context, state *requestState) context.Context {
	return context.WithValue(ctx, ctxkey.KeySessionState, state)
}

func stateFrom(ctx context.Context) *requestState {
	state, _ := ctx.Value(ctxkey.KeySessionState).(*requestState)
	return state
}

// cookieCandidate returns the identity the refresher resolved from the session
// cookie, or nil.
func cookieCandidate(ctx context.Context) *IdentityContext {
	if state := stateFrom(ctx); state != nil {
		return state.cookie
	}
	return nil
}

// SkipCookieRefresh tells the refresher not to touch the session cookie on the
// way out, because the handler has written its own. It must be called before
// the response is written.
func SkipCookieRefresh(ctx context.Context) {
	if state := stateFrom(ctx); state != nil {
		state.skipCookie = true
	}
}
