// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account owns the identity records that sessions and credentials are
issued against.

It is read-mostly from the point of view of the session lifecycle: the auth
service creates identities during registration and guest entry, and the session
store reads them back when a browser session or bearer credential is validated.

# Architecture

  - Entities: Identity (immutable snapshot, never lazily loaded).
  - Repository: Works over any [Querier], so the same SQL runs on the pool or
    inside a session transaction.
  - Service: Admin bootstrap.
*/
package account

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/haii/authcore/internal/platform/apperr"
	"github.com/haii/authcore/internal/platform/sec"
)

// # Domain Entities

// Identity is a registered user or guest. Guests have no email and no password.
type Identity struct {
	ID           string       `json:"id"`
	Email        *string      `json:"email"`
	PasswordHash string       `json:"-"`
	Role         sec.UserRole `json:"role"`
	IsGuest      bool         `json:"is_guest"`
	FirstName    *string      `json:"first_name"`
	LastName     *string      `json:"last_name"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Subject projects the identity onto the claims minted into a bearer credential.
func (identity *Identity) Subject() sec.Subject {
	return sec.Subject{ID: identity.ID, Role: identity.Role, Guest: identity.IsGuest}
}

// # Errors

// ErrNotFound is returned when no identity matches the lookup.
var ErrNotFound = apperr.NotFound("Identity")

// ErrEmailTaken is returned when an email is already registered.
var ErrEmailTaken = apperr.Conflict("Email already registered")

// # Repository Contracts

// Repository defines the persistence contract for identities.
type Repository interface {

	/*
		ByID returns the identity with the given ID.

		Returns:
		  - *Identity: Loaded entity
		  - error: [ErrNotFound] or storage failures
	*/
	ByID(context context.Context, id string) (*Identity, error)

	/*
		ByEmail returns the identity registered under email. The email is
		normalised before lookup.

		Returns:
		  - *Identity: Loaded entity
		  - error: [ErrNotFound] or storage failures
	*/
	ByEmail(context context.Context, email string) (*Identity, error)

	/*
		Create persists a brand-new identity.

		Returns:
		  - error: [ErrEmailTaken] or storage failures
	*/
	Create(context context.Context, identity *Identity) error

	/*
		Lock takes a row lock on the identity for the rest of the enclosing
		transaction, serialising concurrent session creation for it.

		Returns:
		  - error: [ErrNotFound] or storage failures
	*/
	Lock(context context.Context, id string) error
}

// # Normalisation

// NormalizeEmail trims and Unicode case-folds an email for storage and lookup.
// A Caser is stateful, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// # Field Identifiers

const (
	FieldEmail     = "email"
	FieldPassword  = "password"
	FieldRole      = "role"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
)
