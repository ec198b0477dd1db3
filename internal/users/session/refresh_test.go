// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/session"
)

func (f *fixture) issue(t *testing.T, identityID string) string {
	t.Helper()

	var secret string
	f.read(t, func(tx session.Tx) error {
		var err error
		secret, _, err = f.credentials.Issue(context.Background(), tx, identityID)
		return err
	})
	return secret
}

func (f *fixture) redeem(secret string) (*session.RefreshCredential, error) {
	var (
		record    *session.RefreshCredential
		redeemErr error
	)
	err := f.store.InTx(context.Background(), func(tx session.Tx) error {
		record, redeemErr = f.credentials.Redeem(context.Background(), tx, secret)
		// Commit the deletion even when redemption failed.
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, redeemErr
}

/*
TestCredentials_IssueStoresOnlyDigest verifies the plaintext secret is never a
lookup key.
*/
func TestCredentials_IssueStoresOnlyDigest(t *testing.T) {
	f := newFixture(t)
	identity := f.identity(t)

	secret := f.issue(t, identity.ID)

	f.read(t, func(tx session.Tx) error {
		plain, err := tx.RefreshCredential(context.Background(), secret)
		require.NoError(t, err)
		assert.Nil(t, plain)

		hashed, err := tx.RefreshCredential(context.Background(), sec.HashToken(secret))
		require.NoError(t, err)
		require.NotNil(t, hashed)
		assert.Equal(t, identity.ID, hashed.IdentityID)
		assert.Equal(t, f.clock.current.Add(30*24*time.Hour), hashed.ExpiresAt)
		return nil
	})
}

/*
TestCredentials_RedeemIsSingleUse verifies the second redemption of the same
secret fails.
*/
func TestCredentials_RedeemIsSingleUse(t *testing.T) {
	f := newFixture(t)
	identity := f.identity(t)
	secret := f.issue(t, identity.ID)

	record, err := f.redeem(secret)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, record.IdentityID)

	_, err = f.redeem(secret)
	assert.ErrorIs(t, err, session.ErrRefreshNotFound)
}

/*
TestCredentials_RedeemExpired verifies an expired secret is deleted and
reported, and is gone afterwards.
*/
func TestCredentials_RedeemExpired(t *testing.T) {
	f := newFixture(t)
	identity := f.identity(t)
	secret := f.issue(t, identity.ID)

	f.clock.Advance(30 * 24 * time.Hour)

	_, err := f.redeem(secret)
	assert.ErrorIs(t, err, session.ErrRefreshExpired)

	_, err = f.redeem(secret)
	assert.ErrorIs(t, err, session.ErrRefreshNotFound)
}

/*
TestCredentials_Revoke verifies revocation deletes the record and tolerates
unknown secrets.
*/
func TestCredentials_Revoke(t *testing.T) {
	f := newFixture(t)
	identity := f.identity(t)
	secret := f.issue(t, identity.ID)

	f.read(t, func(tx session.Tx) error {
		record, err := f.credentials.Revoke(context.Background(), tx, secret)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, identity.ID, record.IdentityID)

		unknown, err := f.credentials.Revoke(context.Background(), tx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, unknown)

		empty, err := f.credentials.Revoke(context.Background(), tx, "")
		require.NoError(t, err)
		assert.Nil(t, empty)
		return nil
	})

	_, err := f.redeem(secret)
	assert.ErrorIs(t, err, session.ErrRefreshNotFound)
}
