// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/pkg/pointer"
	"github.com/haii/authcore/pkg/uuid"
)

// # Service Layer

// Service orchestrates identity bootstrap.
type Service struct {
	repository Repository
	hasher     *sec.PasswordHasher
	logger     *slog.Logger
}

// NewService constructs a new [Service] with its repository dependency.
func NewService(repository Repository, hasher *sec.PasswordHasher, logger *slog.Logger) *Service {
	return &Service{repository: repository, hasher: hasher, logger: logger}
}

/*
EnsureAdmin creates the bootstrap administrator if no identity owns the email.

Description: Idempotent; an existing identity is returned untouched even when
its role or password differ from the configured values.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - *Identity: The existing or newly created administrator
  - error: Storage or hashing failures
*/
func (service *Service) EnsureAdmin(context context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)

	existing, err := service.repository.ByEmail(context, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account_service_ensure_admin_lookup_failed: %w", err)
	}

	passwordHash, err := service.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("account_service_ensure_admin_hash_failed: %w", err)
	}

	admin := &Identity{
		ID:           uuid.New(),
		Email:        pointer.To(email),
		PasswordHash: passwordHash,
		Role:         sec.RoleAdmin,
	}

	if err := service.repository.Create(context, admin); err != nil {
		// Another replica won the race.
		if errors.Is(err, ErrEmailTaken) {
			return service.repository.ByEmail(context, email)
		}
		return nil, fmt.Errorf("account_service_ensure_admin_create_failed: %w", err)
	}

	service.logger.Info("admin_bootstrapped", slog.String("identity_id", admin.ID))
	return admin, nil
}
