// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account (Postgres) implements the storage layer for identities.

# Schema Table Mapping
  - users: Identity, role, guest flag and password hash.
*/
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/haii/authcore/internal/platform/dberr"
)

// Querier is the subset of pgx shared by [pgxpool.Pool] and [pgx.Tx].
type Querier interface {
	Exec(context context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(context context.Context, sql string, arguments ...any) pgx.Row
}

const identityColumns = `id, email, password_hash, role, is_guest, first_name, last_name, created_at, updated_at`

// # Repository Implementation

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	querier Querier
}

// NewPostgresRepository binds the repository to a pool or an open transaction.
func NewPostgresRepository(querier Querier) *PostgresRepository {
	return &PostgresRepository{querier: querier}
}

/*
ByID retrieves an identity by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Identity: Hydrated entity
  - error: ErrNotFound or execution errors
*/
func (repository *PostgresRepository) ByID(context context.Context, id string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users WHERE id = $1`

	identity, err := scanIdentity(repository.querier.QueryRow(context, query, id))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres_identity_repo_by_id_failed: %w", err)
	}
	return identity, nil
}

/*
ByEmail retrieves an identity by its normalised email.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Identity: Hydrated entity
  - error: ErrNotFound or execution errors
*/
func (repository *PostgresRepository) ByEmail(context context.Context, email string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users WHERE email = $1`

	identity, err := scanIdentity(repository.querier.QueryRow(context, query, NormalizeEmail(email)))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres_identity_repo_by_email_failed: %w", err)
	}
	return identity, nil
}

/*
Create persists a new identity. Timestamps are initialised when unset and the
email is normalised in place.

Parameters:
  - context: context.Context
  - identity: *Identity

Returns:
  - error: ErrEmailTaken or execution errors
*/
func (repository *PostgresRepository) Create(context context.Context, identity *Identity) error {
	const query = `
		INSERT INTO users (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	prepareForInsert(identity, time.Now().UTC())

	var passwordHash *string
	if identity.PasswordHash != "" {
		passwordHash = &identity.PasswordHash
	}

	_, err := repository.querier.Exec(context, query,
		identity.ID,
		identity.Email,
		passwordHash,
		identity.Role,
		identity.IsGuest,
		identity.FirstName,
		identity.LastName,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if dberr.IsUniqueViolation(err, "users_email_key") {
			return ErrEmailTaken
		}
		return fmt.Errorf("postgres_identity_repo_create_failed: %w", err)
	}
	return nil
}

/*
Lock takes a FOR UPDATE lock on the identity row.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: ErrNotFound or execution errors
*/
func (repository *PostgresRepository) Lock(context context.Context, id string) error {
	const query = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	var locked string
	if err := repository.querier.QueryRow(context, query, id).Scan(&locked); err != nil {
		if dberr.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("postgres_identity_repo_lock_failed: %w", err)
	}
	return nil
}

// # Helpers

func scanIdentity(row pgx.Row) (*Identity, error) {
	identity := &Identity{}
	var passwordHash *string

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&passwordHash,
		&identity.Role,
		&identity.IsGuest,
		&identity.FirstName,
		&identity.LastName,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if passwordHash != nil {
		identity.PasswordHash = *passwordHash
	}
	return identity, nil
}

// prepareForInsert normalises the email and stamps missing timestamps.
func prepareForInsert(identity *Identity, now time.Time) {
	if identity.Email != nil {
		normalized := NormalizeEmail(*identity.Email)
		identity.Email = &normalized
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = identity.CreatedAt
	}
}
