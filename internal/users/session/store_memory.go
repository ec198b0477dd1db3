// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/haii/authcore/internal/users/account"
)

// MemoryStore is an in-process [Store]. Transactions are fully serialised and a
// failed transaction restores the snapshot taken when it began, matching the
// commit/rollback contract of the Postgres store.
type MemoryStore struct {
	mutex sync.Mutex
	state memoryState
}

type memoryState struct {
	identities *account.MemoryTable
	sessions   map[string]BrowserSession
	windows    map[string]ActivityWindow
	refresh    map[string]RefreshCredential
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		identities: account.NewMemoryTable(),
		sessions:   make(map[string]BrowserSession),
		windows:    make(map[string]ActivityWindow),
		refresh:    make(map[string]RefreshCredential),
	}}
}

func (state memoryState) clone() memoryState {
	return memoryState{
		identities: state.identities.Clone(),
		sessions:   maps.Clone(state.sessions),
		windows:    maps.Clone(state.windows),
		refresh:    maps.Clone(state.refresh),
	}
}

// InTx implements [Store].
func (store *MemoryStore) InTx(context context.Context, fn func(tx Tx) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := context.Err(); err != nil {
		return err
	}

	snapshot := store.state.clone()
	if err := fn(&memoryTx{state: &store.state}); err != nil {
		store.state = snapshot
		return err
	}
	if err := context.Err(); err != nil {
		store.state = snapshot
		return err
	}
	return nil
}

// Purge implements [Store].
func (store *MemoryStore) Purge(_ context.Context, now time.Time, retention time.Duration) (PurgeResult, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var result PurgeResult
	for hash, credential := range store.state.refresh {
		if credential.ExpiredAt(now) {
			delete(store.state.refresh, hash)
			result.RefreshCredentials++
		}
	}

	cutoff := now.Add(-retention)
	for id, session := range store.state.sessions {
		if !endedAt(session).Before(cutoff) {
			continue
		}
		if store.closeWindow(session) {
			result.Windows++
		}
		delete(store.state.sessions, id)
		result.Sessions++
	}
	return result, nil
}

// closeWindow stamps the open window linked to a purged session. Caller holds the mutex.
func (store *MemoryStore) closeWindow(session BrowserSession) bool {
	window, found := store.state.windows[session.WindowID]
	if session.WindowID == "" || !found || !window.Open() {
		return false
	}
	ended := endedAt(session)
	if ended.Before(window.StartedAt) {
		ended = window.StartedAt
	}
	window.EndedAt = &ended
	store.state.windows[window.ID] = window
	return true
}

// endedAt is when the session stopped being usable.
func endedAt(session BrowserSession) time.Time {
	if session.RevokedAt != nil && session.RevokedAt.Before(session.ExpiresAt) {
		return *session.RevokedAt
	}
	return session.ExpiresAt
}

// # Transaction

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) Identities() account.Repository {
	return tx.state.identities
}

func (tx *memoryTx) Session(_ context.Context, id string) (*BrowserSession, error) {
	session, found := tx.state.sessions[id]
	if !found {
		return nil, nil
	}
	return &session, nil
}

func (tx *memoryTx) UnrevokedSessions(_ context.Context, identityID string) ([]BrowserSession, error) {
	var result []BrowserSession
	for _, session := range tx.state.sessions {
		if session.IdentityID == identityID && session.RevokedAt == nil {
			result = append(result, session)
		}
	}
	return result, nil
}

func (tx *memoryTx) InsertSession(_ context.Context, session BrowserSession) error {
	tx.state.sessions[session.ID] = session
	return nil
}

func (tx *memoryTx) UpdateSession(_ context.Context, session BrowserSession) error {
	tx.state.sessions[session.ID] = session
	return nil
}

func (tx *memoryTx) Window(_ context.Context, id string) (*ActivityWindow, error) {
	window, found := tx.state.windows[id]
	if !found {
		return nil, nil
	}
	return &window, nil
}

func (tx *memoryTx) OpenWindows(_ context.Context, identityID string) ([]ActivityWindow, error) {
	var result []ActivityWindow
	for _, window := range tx.state.windows {
		if window.IdentityID == identityID && window.Open() {
			result = append(result, window)
		}
	}
	return result, nil
}

func (tx *memoryTx) LatestWindow(_ context.Context, identityID string) (*ActivityWindow, error) {
	var latest *ActivityWindow
	for _, window := range tx.state.windows {
		if window.IdentityID != identityID {
			continue
		}
		if latest == nil || window.StartedAt.After(latest.StartedAt) ||
			(window.StartedAt.Equal(latest.StartedAt) && window.ID > latest.ID) {
			candidate := window
			latest = &candidate
		}
	}
	return latest, nil
}

func (tx *memoryTx) InsertWindow(_ context.Context, window ActivityWindow) error {
	tx.state.windows[window.ID] = window
	return nil
}

func (tx *memoryTx) UpdateWindow(_ context.Context, window ActivityWindow) error {
	tx.state.windows[window.ID] = window
	return nil
}

func (tx *memoryTx) RefreshCredential(_ context.Context, tokenHash string) (*RefreshCredential, error) {
	credential, found := tx.state.refresh[tokenHash]
	if !found {
		return nil, nil
	}
	return &credential, nil
}

func (tx *memoryTx) InsertRefreshCredential(_ context.Context, credential RefreshCredential) error {
	tx.state.refresh[credential.TokenHash] = credential
	return nil
}

func (tx *memoryTx) DeleteRefreshCredential(_ context.Context, tokenHash string) error {
	delete(tx.state.refresh, tokenHash)
	return nil
}
