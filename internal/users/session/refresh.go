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
)

// # Errors

var (
	// ErrRefreshNotFound is returned when no credential matches the secret.
	ErrRefreshNotFound = errors.New("refresh credential not found")

	// ErrRefreshExpired is returned when the credential existed but had expired.
	// The row has been deleted by the time the caller sees it.
	ErrRefreshExpired = errors.New("refresh credential expired")
)

// Credentials issues and redeems single-use refresh secrets. Only the SHA-256
// digest of a secret is ever persisted.
type Credentials struct {
	timeToLive time.Duration
	clock      Clock
	metrics    *metrics.Metrics
}

// NewCredentials constructs the refresh credential manager. metrics may be nil.
func NewCredentials(timeToLive time.Duration, clock Clock, recorder *metrics.Metrics) *Credentials {
	return &Credentials{timeToLive: timeToLive, clock: clock, metrics: recorder}
}

/*
Issue mints a new refresh secret for the identity and stores its digest.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string

Returns:
  - string: The plaintext secret, shown to the client once
  - time.Time: Expiry
  - error: Persistence or entropy failures
*/
func (credentials *Credentials) Issue(context context.Context, tx Tx, identityID string) (string, time.Time, error) {
	now := credentials.clock.Now()

	secret, expiresAt, err := sec.IssueRefreshSecret(now, credentials.timeToLive)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh_issue_secret_failed: %w", err)
	}

	record := RefreshCredential{
		TokenHash:  sec.HashToken(secret),
		IdentityID: identityID,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := tx.InsertRefreshCredential(context, record); err != nil {
		return "", time.Time{}, fmt.Errorf("refresh_issue_insert_failed: %w", err)
	}

	return secret, expiresAt, nil
}

/*
Redeem consumes a refresh secret. The row is deleted whether it was live or
expired, so a secret is never accepted twice.

Parameters:
  - context: context.Context
  - tx: Tx
  - secret: string

Returns:
  - *RefreshCredential: The consumed record
  - error: ErrRefreshNotFound, ErrRefreshExpired or persistence failures
*/
func (credentials *Credentials) Redeem(context context.Context, tx Tx, secret string) (*RefreshCredential, error) {
	record, err := credentials.lookup(context, tx, secret)
	if err != nil {
		return nil, err
	}
	if record == nil {
		credentials.metrics.RefreshOutcome(metrics.RefreshUnknown)
		return nil, ErrRefreshNotFound
	}

	if err := tx.DeleteRefreshCredential(context, record.TokenHash); err != nil {
		return nil, fmt.Errorf("refresh_redeem_delete_failed: %w", err)
	}

	if record.ExpiredAt(credentials.clock.Now()) {
		credentials.metrics.RefreshOutcome(metrics.RefreshExpired)
		return nil, ErrRefreshExpired
	}

	credentials.metrics.RefreshOutcome(metrics.RefreshRedeemed)
	ctxutil.GetLogger(context).Info("refresh_credential_redeemed", "user_id", record.IdentityID)

	return record, nil
}

/*
Revoke deletes the credential matching secret, if any, regardless of expiry.

Returns:
  - *RefreshCredential: The deleted record, or nil when none matched
  - error: Persistence failures
*/
func (credentials *Credentials) Revoke(context context.Context, tx Tx, secret string) (*RefreshCredential, error) {
	record, err := credentials.lookup(context, tx, secret)
	if err != nil || record == nil {
		return nil, err
	}

	if err := tx.DeleteRefreshCredential(context, record.TokenHash); err != nil {
		return nil, fmt.Errorf("refresh_revoke_delete_failed: %w", err)
	}
	return record, nil
}

func (credentials *Credentials) lookup(context context.Context, tx Tx, secret string) (*RefreshCredential, error) {
	if secret == "" {
		return nil, nil
	}

	record, err := tx.RefreshCredential(context, sec.HashToken(secret))
	if err != nil {
		return nil, fmt.Errorf("refresh_lookup_failed: %w", err)
	}
	return record, nil
}
