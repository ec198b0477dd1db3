// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements the persisted half of the authentication lifecycle:
browser sessions with rolling-plus-absolute expiry, the activity windows that
track them one to one, and single-use refresh credentials.

# Architecture

  - Entities: BrowserSession, ActivityWindow, RefreshCredential. Every value is an
    immutable snapshot loaded explicitly through a [Tx]; nothing is lazily resolved.
  - Store: [Store.InTx] runs one transaction per request step. PostgreSQL is the
    single source of truth; [MemoryStore] mirrors its semantics for tests.
  - Logic: [Sessions], [Windows] and [Credentials] hold the policy (TTLs, clock)
    and operate on a caller-supplied [Tx], so callers decide what is atomic.

# Failure Semantics

Absence and invalidity are empty results, never errors. Only persistence faults
are returned as errors, and they abort the enclosing transaction.
*/
package session

import (
	"time"

	"github.com/haii/authcore/internal/users/account"
)

// # Domain Entities

// BrowserSession is the server-side record referenced by the session cookie.
type BrowserSession struct {
	ID                string
	IdentityID        string
	WindowID          string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	LastSeenAt        time.Time
	RevokedAt         *time.Time
}

// LiveAt reports whether the session is unrevoked and inside both expiries.
func (session BrowserSession) LiveAt(now time.Time) bool {
	return session.RevokedAt == nil && now.Before(session.ExpiresAt) && now.Before(session.AbsoluteExpiresAt)
}

// MaxAge is the whole number of seconds until the current rolling expiry.
func (session BrowserSession) MaxAge(now time.Time) int {
	remaining := session.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// ActivityWindow is a contiguous period of activity, 1:1 with a browser session.
type ActivityWindow struct {
	ID         string
	IdentityID string
	StartedAt  time.Time
	EndedAt    *time.Time
}

// Open reports whether the window has not been closed.
func (window ActivityWindow) Open() bool {
	return window.EndedAt == nil
}

// RefreshCredential is the stored form of a refresh secret. Only the hash is kept.
type RefreshCredential struct {
	TokenHash  string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// ExpiredAt reports whether the credential can no longer be redeemed.
func (credential RefreshCredential) ExpiredAt(now time.Time) bool {
	return !now.Before(credential.ExpiresAt)
}

// # Results

// Validation is the outcome of [Sessions.Validate]. A nil Session means the id
// did not resolve to a live session.
type Validation struct {
	Session  *BrowserSession
	Identity *account.Identity
	Mutated  bool
}

// Live reports whether the validation produced a live session.
func (validation Validation) Live() bool {
	return validation.Session != nil && validation.Identity != nil
}

// PurgeResult counts rows removed by [Store.Purge]. Windows counts activity
// windows closed because their session was deleted while still open.
type PurgeResult struct {
	RefreshCredentials int64
	Sessions           int64
	Windows            int64
}

// # Policy

// Policy is the TTL configuration shared by every session.
type Policy struct {
	// Rolling is the sliding window extended on every validated use.
	Rolling time.Duration
	// Absolute is the hard ceiling fixed when the session is created.
	Absolute time.Duration
}

// Clock returns the current instant. Production passes [time.Now].
type Clock func() time.Time

// Now returns the current instant in UTC. A nil clock reads the wall clock.
func (clock Clock) Now() time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
