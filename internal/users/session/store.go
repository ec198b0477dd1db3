// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"time"

	"github.com/haii/authcore/internal/users/account"
)

// # Transaction Boundary

// Store opens transactions over the session tables.
type Store interface {

	/*
		InTx runs fn inside a single transaction. The transaction commits when fn
		returns nil and rolls back otherwise, including on context cancellation.

		Parameters:
		  - context: context.Context
		  - fn: func(Tx) error

		Returns:
		  - error: fn's error or persistence failures
	*/
	InTx(context context.Context, fn func(tx Tx) error) error

	/*
		Purge deletes refresh credentials past their expiry and sessions that
		ended more than retention before now. An open window linked to a
		deleted session is closed at the session's end in the same
		transaction.

		Returns:
		  - PurgeResult: Row counts
		  - error: Persistence failures
	*/
	Purge(context context.Context, now time.Time, retention time.Duration) (PurgeResult, error)
}

// # Row Access

// Tx is the row-level API available inside [Store.InTx]. Getters return nil, nil
// when the row does not exist; rows they return are locked for the rest of the
// transaction.
type Tx interface {
	Identities() account.Repository

	Session(context context.Context, id string) (*BrowserSession, error)
	UnrevokedSessions(context context.Context, identityID string) ([]BrowserSession, error)
	InsertSession(context context.Context, session BrowserSession) error
	UpdateSession(context context.Context, session BrowserSession) error

	Window(context context.Context, id string) (*ActivityWindow, error)
	OpenWindows(context context.Context, identityID string) ([]ActivityWindow, error)
	LatestWindow(context context.Context, identityID string) (*ActivityWindow, error)
	InsertWindow(context context.Context, window ActivityWindow) error
	UpdateWindow(context context.Context, window ActivityWindow) error

	RefreshCredential(context context.Context, tokenHash string) (*RefreshCredential, error)
	InsertRefreshCredential(context context.Context, credential RefreshCredential) error
	DeleteRefreshCredential(context context.Context, tokenHash string) error
}
