// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/haii/authcore/pkg/uuid"
)

// Windows opens and closes activity windows. It never schedules anything on its
// own; sessions and the auth service call it.
type Windows struct {
	clock Clock
}

// NewWindows constructs a tracker reading time from clock.
func NewWindows(clock Clock) *Windows {
	return &Windows{clock: clock}
}

/*
Open closes every open window of the identity and starts a new one, so windows
never overlap. A nil startedAt means now.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string
  - startedAt: *time.Time

Returns:
  - *ActivityWindow: The new open window
  - error: Persistence failures
*/
func (windows *Windows) Open(context context.Context, tx Tx, identityID string, startedAt *time.Time) (*ActivityWindow, error) {
	now := windows.clock.Now()
	if startedAt != nil {
		now = startedAt.UTC()
	}

	open, err := tx.OpenWindows(context, identityID)
	if err != nil {
		return nil, fmt.Errorf("windows_open_list_failed: %w", err)
	}

	for _, window := range open {
		if _, err := windows.end(context, tx, window, now); err != nil {
			return nil, err
		}
	}

	window := ActivityWindow{
		ID:         uuid.New(),
		IdentityID: identityID,
		StartedAt:  now,
	}
	if err := tx.InsertWindow(context, window); err != nil {
		return nil, fmt.Errorf("windows_open_insert_failed: %w", err)
	}

	return &window, nil
}

/*
Close stamps ended_at on the window. Closing an already closed window is a
no-op; an unknown id returns nil. A nil endedAt means now.

Parameters:
  - context: context.Context
  - tx: Tx
  - windowID: string
  - endedAt: *time.Time

Returns:
  - *ActivityWindow: The window after the call, or nil
  - error: Persistence failures
*/
func (windows *Windows) Close(context context.Context, tx Tx, windowID string, endedAt *time.Time) (*ActivityWindow, error) {
	if windowID == "" {
		return nil, nil
	}

	window, err := tx.Window(context, windowID)
	if err != nil {
		return nil, fmt.Errorf("windows_close_lookup_failed: %w", err)
	}
	if window == nil {
		return nil, nil
	}

	now := windows.clock.Now()
	if endedAt != nil {
		now = endedAt.UTC()
	}
	return windows.end(context, tx, *window, now)
}

/*
CloseLatestOpen closes the most recently started window of the identity when it
is still open. Used when no window id is known, such as a logout that only
carries a refresh secret.

Parameters:
  - context: context.Context
  - tx: Tx
  - identityID: string

Returns:
  - *ActivityWindow: The latest window, or nil when the identity has none
  - error: Persistence failures
*/
func (windows *Windows) CloseLatestOpen(context context.Context, tx Tx, identityID string) (*ActivityWindow, error) {
	window, err := tx.LatestWindow(context, identityID)
	if err != nil {
		return nil, fmt.Errorf("windows_close_latest_lookup_failed: %w", err)
	}
	if window == nil {
		return nil, nil
	}
	return windows.end(context, tx, *window, windows.clock.Now())
}

func (windows *Windows) end(context context.Context, tx Tx, window ActivityWindow, endedAt time.Time) (*ActivityWindow, error) {
	if !window.Open() {
		return &window, nil
	}

	window.EndedAt = &endedAt
	if err := tx.UpdateWindow(context, window); err != nil {
		return nil, fmt.Errorf("windows_close_update_failed: %w", err)
	}
	return &window, nil
}
