// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"time"
)

// MemoryTable is an unsynchronised in-memory identity table. The owner is
// responsible for locking; the session package's MemoryStore holds one under
// its transaction mutex.
type MemoryTable struct {
	byID map[string]Identity
}

// NewMemoryTable returns an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{byID: make(map[string]Identity)}
}

// Clone returns an independent copy for snapshot/rollback.
func (table *MemoryTable) Clone() *MemoryTable {
	clone := NewMemoryTable()
	for id, identity := range table.byID {
		clone.byID[id] = identity
	}
	return clone
}

// ByID implements [Repository].
func (table *MemoryTable) ByID(_ context.Context, id string) (*Identity, error) {
	identity, found := table.byID[id]
	if !found {
		return nil, ErrNotFound
	}
	return &identity, nil
}

// ByEmail implements [Repository].
func (table *MemoryTable) ByEmail(_ context.Context, email string) (*Identity, error) {
	normalized := NormalizeEmail(email)
	for _, identity := range table.byID {
		if identity.Email != nil && *identity.Email == normalized {
			return &identity, nil
		}
	}
	return nil, ErrNotFound
}

// Create implements [Repository].
func (table *MemoryTable) Create(context context.Context, identity *Identity) error {
	prepareForInsert(identity, time.Now().UTC())

	if identity.Email != nil {
		if _, err := table.ByEmail(context, *identity.Email); err == nil {
			return ErrEmailTaken
		}
	}

	table.byID[identity.ID] = *identity
	return nil
}

// Lock implements [Repository]. The owning store already serialises access.
func (table *MemoryTable) Lock(_ context.Context, id string) error {
	if _, found := table.byID[id]; !found {
		return ErrNotFound
	}
	return nil
}
