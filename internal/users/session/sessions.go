// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haii/authcore/internal/platform/ctxutil"
	"github.com/haii/authcore/internal/platform/metrics"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
)

// Sessions manages browser session records. At most one unrevoked session
// exists per identity at any time.
type Sessions struct {
	policy  Policy
	windows *Windows
	clock   Clock
	metrics *metrics.Metrics
}

// NewSessions constructs the session manager. metrics may be nil.
func NewSessions(policy Policy, windows *Windows, clock Clock, recorder *metrics.Metrics) *Sessions {
	return &Sessions{
		policy:  policy,
		windows: windows,
		clock:   clock,
		metrics: recorder,
	}
}

/*
Start locks the identity, then opens a fresh activity window and a session bound
to it. Everything the identity had open is revoked or closed first.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string

Returns:
  - *BrowserSession: The new live session
  - *ActivityWindow: Its window
  - error: account.ErrNotFound or persistence failures
*/
func (sessions *Sessions) Start(context context.Context, tx Tx, identityID string) (*BrowserSession, *ActivityWindow, error) {
	// 1. Serialise concurrent starts for the same identity.
	if err := tx.Identities().Lock(context, identityID); err != nil {
		return nil, nil, err
	}

	// 2. Revoke before opening so the unrevoked-session index never sees two rows.
	if _, err := sessions.RevokeAllForIdentity(context, tx, identityID); err != nil {
		return nil, nil, err
	}

	window, err := sessions.windows.Open(context, tx, identityID, nil)
	if err != nil {
		return nil, nil, err
	}

	session, err := sessions.Create(context, tx, identityID, window.ID)
	if err != nil {
		return nil, nil, err
	}

	return session, window, nil
}

/*
Create revokes every unrevoked session of the identity and inserts a new one.

The absolute expiry is fixed here; the rolling expiry never exceeds it.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string
  - windowID: string (may be empty)

Returns:
  - *BrowserSession: The inserted session
  - error: Persistence or entropy failures
*/
func (sessions *Sessions) Create(context context.Context, tx Tx, identityID, windowID string) (*BrowserSession, error) {
	if _, err := sessions.RevokeAllForIdentity(context, tx, identityID); err != nil {
		return nil, err
	}

	id, err := sec.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("sessions_create_id_failed: %w", err)
	}

	now := sessions.clock.Now()
	absolute := now.Add(sessions.policy.Absolute)

	session := BrowserSession{
		ID:                id,
		IdentityID:        identityID,
		WindowID:          windowID,
		IssuedAt:          now,
		ExpiresAt:         earliest(absolute, now.Add(sessions.policy.Rolling)),
		AbsoluteExpiresAt: absolute,
		LastSeenAt:        now,
	}
	if err := tx.InsertSession(context, session); err != nil {
		return nil, fmt.Errorf("sessions_create_insert_failed: %w", err)
	}

	sessions.metrics.SessionCreated()
	ctxutil.GetLogger(context).Info("session_created",
		"user_id", identityID,
		"activity_window_id", windowID,
		"expires_at", session.ExpiresAt,
	)

	return &session, nil
}

/*
Validate resolves a session id to a live session and its identity.

A live session has its last_seen_at bumped and its rolling expiry extended, capped
by the absolute expiry. A dead session is revoked (if not already) and its window
is closed. An unknown id is an empty result with Mutated false.

Parameters:
  - context: context.Context
  - tx: Tx
  - id: string

Returns:
  - Validation: Session and identity when live
  - error: Persistence failures only
*/
func (sessions *Sessions) Validate(context context.Context, tx Tx, id string) (Validation, error) {
	if id == "" {
		return Validation{}, nil
	}

	session, err := tx.Session(context, id)
	if err != nil {
		return Validation{}, fmt.Errorf("sessions_validate_lookup_failed: %w", err)
	}
	if session == nil {
		return Validation{}, nil
	}

	now := sessions.clock.Now()

	var identity *account.Identity
	if session.LiveAt(now) {
		identity, err = tx.Identities().ByID(context, session.IdentityID)
		if err != nil {
			if !errors.Is(err, account.ErrNotFound) {
				return Validation{}, fmt.Errorf("sessions_validate_identity_failed: %w", err)
			}
			identity = nil
		}
	}

	if identity == nil {
		return Validation{Mutated: true}, sessions.expire(context, tx, *session, now)
	}

	session.LastSeenAt = now
	session.ExpiresAt = earliest(session.AbsoluteExpiresAt, now.Add(sessions.policy.Rolling))
	if err := tx.UpdateSession(context, *session); err != nil {
		return Validation{}, fmt.Errorf("sessions_validate_bump_failed: %w", err)
	}

	return Validation{Session: session, Identity: identity, Mutated: true}, nil
}

/*
RevokeByID stamps revoked_at on one session if it is not already set. The
activity window is not closed; callers that want the cascade close it.

Parameters:
  - context: context.Context
  - tx: Tx
  - id: string

Returns:
  - *BrowserSession: The session after the call, or nil when unknown
  - error: Persistence failures
*/
func (sessions *Sessions) RevokeByID(context context.Context, tx Tx, id string) (*BrowserSession, error) {
	if id == "" {
		return nil, nil
	}

	session, err := tx.Session(context, id)
	if err != nil {
		return nil, fmt.Errorf("sessions_revoke_lookup_failed: %w", err)
	}
	if session == nil || session.RevokedAt != nil {
		return session, nil
	}

	now := sessions.clock.Now()
	session.RevokedAt = &now
	if err := tx.UpdateSession(context, *session); err != nil {
		return nil, fmt.Errorf("sessions_revoke_update_failed: %w", err)
	}

	sessions.metrics.SessionsRevoked(metrics.RevokeLogout, 1)
	ctxutil.GetLogger(context).Info("session_revoked", "user_id", session.IdentityID)

	return session, nil
}

/*
RevokeAllForIdentity stamps revoked_at on every unrevoked session of the
identity. Windows are not touched.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string

Returns:
  - []BrowserSession: Sessions revoked by this call
  - error: Persistence failures
*/
func (sessions *Sessions) RevokeAllForIdentity(context context.Context, tx Tx, identityID string) ([]BrowserSession, error) {
	active, err := tx.UnrevokedSessions(context, identityID)
	if err != nil {
		return nil, fmt.Errorf("sessions_revoke_all_list_failed: %w", err)
	}

	now := sessions.clock.Now()
	for index := range active {
		active[index].RevokedAt = &now
		if err := tx.UpdateSession(context, active[index]); err != nil {
			return nil, fmt.Errorf("sessions_revoke_all_update_failed: %w", err)
		}
	}

	if len(active) > 0 {
		sessions.metrics.SessionsRevoked(metrics.RevokeSuperseded, len(active))
		ctxutil.GetLogger(context).Debug("sessions_revoked_for_identity",
			"user_id", identityID,
			"count", len(active),
		)
	}

	return active, nil
}

// expire revokes a dead session and closes its window in the same transaction.
func (sessions *Sessions) expire(context context.Context, tx Tx, session BrowserSession, now time.Time) error {
	if session.RevokedAt == nil {
		session.RevokedAt = &now
		if err := tx.UpdateSession(context, session); err != nil {
			return fmt.Errorf("sessions_expire_update_failed: %w", err)
		}
		sessions.metrics.SessionsRevoked(metrics.RevokeExpired, 1)
	}

	if _, err := sessions.windows.Close(context, tx, session.WindowID, &now); err != nil {
		return err
	}

	ctxutil.GetLogger(context).Debug("session_expired_on_validate", "user_id", session.IdentityID)
	return nil
}

func earliest(first, second time.Time) time.Time {
	if second.Before(first) {
		return second
	}
	return first
}
