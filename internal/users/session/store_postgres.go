// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session (Postgres) implements the transactional storage layer.

# Schema Table Mapping
  - browser_sessions: BrowserSession (one unrevoked row per user).
  - activity_windows: ActivityWindow (one open row per user).
  - refresh_credentials: RefreshCredential keyed by token hash.
*/
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haii/authcore/internal/platform/dberr"
	"github.com/haii/authcore/internal/users/account"
)

const (
	sessionColumns = `id, user_id, activity_window_id, issued_at, expires_at, absolute_expires_at, last_seen_at, revoked_at`
	windowColumns  = `id, user_id, started_at, ended_at`
	refreshColumns = `token_hash, user_id, expires_at, created_at`
)

// # Store Implementation

// PostgresStore implements [Store] on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
InTx begins a read-committed transaction, runs fn and commits on success.

Parameters:
  - context: context.Context
  - fn: func(Tx) error

Returns:
  - error: fn's error unchanged, or begin/commit failures
*/
func (store *PostgresStore) InTx(context context.Context, fn func(tx Tx) error) error {
	transaction, err := store.pool.BeginTx(context, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres_session_store_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	if err := fn(&postgresTx{tx: transaction}); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_session_store_commit_failed: %w", err)
	}
	return nil
}

/*
Purge deletes expired refresh credentials and sessions that ended before
now minus retention. Open windows referenced by a deleted session are closed
at the session's end first, in the same transaction.

Parameters:
  - context: context.Context
  - now: time.Time
  - retention: time.Duration

Returns:
  - PurgeResult: Deleted row counts
  - error: Execution errors
*/
func (store *PostgresStore) Purge(context context.Context, now time.Time, retention time.Duration) (PurgeResult, error) {
	const (
		purgeRefresh = `DELETE FROM refresh_credentials WHERE expires_at <= $1`
		closeWindows = `
			UPDATE activity_windows w
			SET ended_at = GREATEST(w.started_at, LEAST(COALESCE(s.revoked_at, s.expires_at), s.expires_at))
			FROM browser_sessions s
			WHERE s.activity_window_id = w.id
			  AND w.ended_at IS NULL
			  AND LEAST(COALESCE(s.revoked_at, s.expires_at), s.expires_at) < $1`
		purgeSessions = `
			DELETE FROM browser_sessions
			WHERE LEAST(COALESCE(revoked_at, expires_at), expires_at) < $1`
	)

	var result PurgeResult
	err := store.InTx(context, func(tx Tx) error {
		querier := tx.(*postgresTx).tx

		tag, err := querier.Exec(context, purgeRefresh, now)
		if err != nil {
			return fmt.Errorf("postgres_session_store_purge_refresh_failed: %w", err)
		}
		result.RefreshCredentials = tag.RowsAffected()

		cutoff := now.Add(-retention)
		tag, err = querier.Exec(context, closeWindows, cutoff)
		if err != nil {
			return fmt.Errorf("postgres_session_store_purge_windows_failed: %w", err)
		}
		result.Windows = tag.RowsAffected()

		tag, err = querier.Exec(context, purgeSessions, cutoff)
		if err != nil {
			return fmt.Errorf("postgres_session_store_purge_sessions_failed: %w", err)
		}
		result.Sessions = tag.RowsAffected()
		return nil
	})
	return result, err
}

// # Transaction

type postgresTx struct {
	tx pgx.Tx
}

func (tx *postgresTx) Identities() account.Repository {
	return account.NewPostgresRepository(tx.tx)
}

// ## Browser Sessions

func (tx *postgresTx) Session(context context.Context, id string) (*BrowserSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM browser_sessions WHERE id = $1 FOR UPDATE`

	session, err := scanSession(tx.tx.QueryRow(context, query, id))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_session_store_session_failed: %w", err)
	}
	return session, nil
}

func (tx *postgresTx) UnrevokedSessions(context context.Context, identityID string) ([]BrowserSession, error) {
	const query = `
		SELECT ` + sessionColumns + ` FROM browser_sessions
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY issued_at
		FOR UPDATE`

	rows, err := tx.tx.Query(context, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_store_unrevoked_failed: %w", err)
	}
	defer rows.Close()

	var sessions []BrowserSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_store_unrevoked_scan_failed: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (tx *postgresTx) InsertSession(context context.Context, session BrowserSession) error {
	const query = `
		INSERT INTO browser_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.tx.Exec(context, query,
		session.ID,
		session.IdentityID,
		nullable(session.WindowID),
		session.IssuedAt,
		session.ExpiresAt,
		session.AbsoluteExpiresAt,
		session.LastSeenAt,
		session.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_store_insert_session_failed: %w", err)
	}
	return nil
}

func (tx *postgresTx) UpdateSession(context context.Context, session BrowserSession) error {
	const query = `
		UPDATE browser_sessions
		SET expires_at = $2, last_seen_at = $3, revoked_at = $4
		WHERE id = $1`

	_, err := tx.tx.Exec(context, query, session.ID, session.ExpiresAt, session.LastSeenAt, session.RevokedAt)
	if err != nil {
		return fmt.Errorf("postgres_session_store_update_session_failed: %w", err)
	}
	return nil
}

// ## Activity Windows

func (tx *postgresTx) Window(context context.Context, id string) (*ActivityWindow, error) {
	const query = `SELECT ` + windowColumns + ` FROM activity_windows WHERE id = $1 FOR UPDATE`

	window, err := scanWindow(tx.tx.QueryRow(context, query, id))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_session_store_window_failed: %w", err)
	}
	return window, nil
}

func (tx *postgresTx) OpenWindows(context context.Context, identityID string) ([]ActivityWindow, error) {
	const query = `
		SELECT ` + windowColumns + ` FROM activity_windows
		WHERE user_id = $1 AND ended_at IS NULL
		FOR UPDATE`

	rows, err := tx.tx.Query(context, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_store_open_windows_failed: %w", err)
	}
	defer rows.Close()

	var windows []ActivityWindow
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_store_open_windows_scan_failed: %w", err)
		}
		windows = append(windows, *window)
	}
	return windows, rows.Err()
}

func (tx *postgresTx) LatestWindow(context context.Context, identityID string) (*ActivityWindow, error) {
	const query = `
		SELECT ` + windowColumns + ` FROM activity_windows
		WHERE user_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`

	window, err := scanWindow(tx.tx.QueryRow(context, query, identityID))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_session_store_latest_window_failed: %w", err)
	}
	return window, nil
}

func (tx *postgresTx) InsertWindow(context context.Context, window ActivityWindow) error {
	const query = `INSERT INTO activity_windows (` + windowColumns + `) VALUES ($1, $2, $3, $4)`

	if _, err := tx.tx.Exec(context, query, window.ID, window.IdentityID, window.StartedAt, window.EndedAt); err != nil {
		return fmt.Errorf("postgres_session_store_insert_window_failed: %w", err)
	}
	return nil
}

func (tx *postgresTx) UpdateWindow(context context.Context, window ActivityWindow) error {
	const query = `UPDATE activity_windows SET ended_at = $2 WHERE id = $1`

	if _, err := tx.tx.Exec(context, query, window.ID, window.EndedAt); err != nil {
		return fmt.Errorf("postgres_session_store_update_window_failed: %w", err)
	}
	return nil
}

// ## Refresh Credentials

func (tx *postgresTx) RefreshCredential(context context.Context, tokenHash string) (*RefreshCredential, error) {
	const query = `SELECT ` + refreshColumns + ` FROM refresh_credentials WHERE token_hash = $1 FOR UPDATE`

	var credential RefreshCredential
	err := tx.tx.QueryRow(context, query, tokenHash).Scan(
		&credential.TokenHash,
		&credential.IdentityID,
		&credential.ExpiresAt,
		&credential.CreatedAt,
	)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_session_store_refresh_failed: %w", err)
	}
	return &credential, nil
}

func (tx *postgresTx) InsertRefreshCredential(context context.Context, credential RefreshCredential) error {
	const query = `INSERT INTO refresh_credentials (` + refreshColumns + `) VALUES ($1, $2, $3, $4)`

	_, err := tx.tx.Exec(context, query,
		credential.TokenHash,
		credential.IdentityID,
		credential.ExpiresAt,
		credential.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_store_insert_refresh_failed: %w", err)
	}
	return nil
}

func (tx *postgresTx) DeleteRefreshCredential(context context.Context, tokenHash string) error {
	const query = `DELETE FROM refresh_credentials WHERE token_hash = $1`

	if _, err := tx.tx.Exec(context, query, tokenHash); err != nil {
		return fmt.Errorf("postgres_session_store_delete_refresh_failed: %w", err)
	}
	return nil
}

// # Helpers

func scanSession(row pgx.Row) (*BrowserSession, error) {
	session := &BrowserSession{}
	var windowID *string

	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&windowID,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.AbsoluteExpiresAt,
		&session.LastSeenAt,
		&session.RevokedAt,
	)
	if err != nil {
		return nil, err
	}

	if windowID != nil {
		session.WindowID = *windowID
	}
	return session, nil
}

func scanWindow(row pgx.Row) (*ActivityWindow, error) {
	window := &ActivityWindow{}
	if err := row.Scan(&window.ID, &window.IdentityID, &window.StartedAt, &window.EndedAt); err != nil {
		return nil, err
	}
	return window, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
