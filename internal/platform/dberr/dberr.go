// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsNotFound reports whether err means the queried row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique-constraint violation, optionally
// restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgError *pgconn.PgError
	if !errors.As(err, &pgError) || pgError.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgError.ConstraintName == constraint
}

// Wrap maps well-known storage failures onto domain errors and returns every other
// error unchanged. notFound and conflict may be nil to leave that class untouched.
func Wrap(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if notFound != nil && IsNotFound(err) {
		return notFound
	}

	// 2. Unique violations (SQLSTATE 23505)
	if conflict != nil && IsUniqueViolation(err, "") {
		return conflict
	}

	return err
}
