// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/haii/authcore/internal/platform/apperr"
	"github.com/haii/authcore/internal/platform/ctxutil"
	"github.com/haii/authcore/internal/platform/metrics"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/internal/users/session"
	"github.com/haii/authcore/pkg/pointer"
	"github.com/haii/authcore/pkg/uuid"
)

// errRefreshOwnerMismatch aborts the refresh transaction so the presented
// secret is not consumed.
var errRefreshOwnerMismatch = errors.New("refresh secret and cookie belong to different identities")

// # Contracts & Types

// Grant is the outcome of a flow that establishes a session.
type Grant struct {
	Bundle  *TokenBundle
	Session *session.BrowserSession
}

// LoginInput holds email and password credentials.
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput holds the data required to enroll a teacher or student.
type RegisterInput struct {
	Email     string
	Password  string
	Role      sec.UserRole
	FirstName *string
	LastName  *string
}

// GuestInput holds the data required to create a guest.
type GuestInput struct {
	FirstName string
}

// LogoutInput names what the caller presented on logout.
type LogoutInput struct {
	RefreshToken string
	SessionID    string
}

// Service implements the credential-issuing flows. Each flow runs in exactly
// one store transaction.
type Service struct {
	store       session.Store
	sessions    *session.Sessions
	windows     *session.Windows
	credentials *session.Credentials
	issuer      *Issuer
	hasher      *sec.PasswordHasher
	limiter     AttemptLimiter
	metrics     *metrics.Metrics
}

// Dependencies groups the collaborators of [Service].
type Dependencies struct {
	Store       session.Store
	Sessions    *session.Sessions
	Windows     *session.Windows
	Credentials *session.Credentials
	Issuer      *Issuer
	Hasher      *sec.PasswordHasher
	Limiter     AttemptLimiter
	Metrics     *metrics.Metrics
}

// NewService constructs the service. Limiter and Metrics may be nil.
func NewService(dependencies Dependencies) *Service {
	return &Service{
		store:       dependencies.Store,
		sessions:    dependencies.Sessions,
		windows:     dependencies.Windows,
		credentials: dependencies.Credentials,
		issuer:      dependencies.Issuer,
		hasher:      dependencies.Hasher,
		limiter:     dependencies.Limiter,
		metrics:     dependencies.Metrics,
	}
}

// # Login Flow

/*
Login verifies email and password, replaces any session the identity had and
issues a bearer credential plus a refresh secret.

Every failure, including lockout, is the same InvalidCredential.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *Grant: Bundle and the new session
  - error: apperr.InvalidCredential or store faults
*/
func (service *Service) Login(context context.Context, input LoginInput) (*Grant, error) {
	logger := ctxutil.GetLogger(context)
	email := account.NormalizeEmail(input.Email)

	// 1. Refuse locked-out emails before touching the database
	if service.limiter != nil {
		blocked, err := service.limiter.Blocked(context, email)
		if err != nil {
			return nil, fmt.Errorf("auth_service_login_limiter_failed: %w", err)
		}
		if blocked {
			service.metrics.LoginThrottled()
			logger.Warn("login_failed", "reason", "throttled")
			return nil, apperr.InvalidCredential()
		}
	}

	// 2. Verify and establish the session atomically
	var (
		grant    *Grant
		rejected bool
	)
	err := service.store.InTx(context, func(tx session.Tx) error {
		identity, err := tx.Identities().ByEmail(context, email)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				rejected = true
				return nil
			}
			return fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}

		if !service.hasher.Verify(input.Password, identity.PasswordHash) {
			rejected = true
			return nil
		}

		grant, err = service.establish(context, tx, identity, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 3. Count the failure; never say which check failed
	if rejected {
		if service.limiter != nil {
			if err := service.limiter.RecordFailure(context, email); err != nil {
				logger.Error("login_limiter_record_failed", "error", err)
			}
		}
		service.metrics.IdentityFailure(apperr.CodeInvalidCredential)
		logger.Warn("login_failed")
		return nil, apperr.InvalidCredential()
	}

	if service.limiter != nil {
		if err := service.limiter.Reset(context, email); err != nil {
			logger.Error("login_limiter_reset_failed", "error", err)
		}
	}

	return grant, nil
}

// # Registration Flow

/*
Register creates a teacher or student with a password and signs them in.

Parameters:
  - context: context.Context
  - caller: *IdentityContext (nil when anonymous)
  - input: RegisterInput

Returns:
  - *Grant: Bundle and the new session
  - error: account.ErrEmailTaken (409), Forbidden (403) or store faults
*/
func (service *Service) Register(context context.Context, caller *IdentityContext, input RegisterInput) (*Grant, error) {
	if !input.Role.In(sec.RoleTeacher, sec.RoleStudent) {
		return nil, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   account.FieldRole,
			Message: "Must be one of: teacher, student",
		})
	}

	// Hash outside the transaction; bcrypt is deliberately slow.
	passwordHash, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_register_hash_failed: %w", err)
	}

	email := account.NormalizeEmail(input.Email)

	var grant *Grant
	err = service.store.InTx(context, func(tx session.Tx) error {
		if _, err := tx.Identities().ByEmail(context, email); err == nil {
			return account.ErrEmailTaken
		} else if !errors.Is(err, account.ErrNotFound) {
			return fmt.Errorf("auth_service_register_lookup_failed: %w", err)
		}

		if caller != nil && caller.Role() == sec.RoleAdmin && input.Role == sec.RoleStudent {
			return apperr.Forbidden("Admins cannot register students")
		}

		identity := &account.Identity{
			ID:           uuid.New(),
			Email:        pointer.To(email),
			PasswordHash: passwordHash,
			Role:         input.Role,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
		}
		if err := tx.Identities().Create(context, identity); err != nil {
			return err
		}

		grant, err = service.establish(context, tx, identity, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("identity_registered",
		"user_id", grant.Bundle.User.ID,
		"role", grant.Bundle.User.Role,
	)
	return grant, nil
}

// # Guest Flow

/*
Guest creates a guest student and signs them in without a refresh secret.

Parameters:
  - context: context.Context
  - input: GuestInput

Returns:
  - *Grant: Bundle (refresh token nil) and the new session
  - error: Store faults
*/
func (service *Service) Guest(context context.Context, input GuestInput) (*Grant, error) {
	var grant *Grant
	err := service.store.InTx(context, func(tx session.Tx) error {
		identity := &account.Identity{
			ID:        uuid.New(),
			Role:      sec.RoleStudent,
			IsGuest:   true,
			FirstName: pointer.To(input.FirstName),
		}
		if err := tx.Identities().Create(context, identity); err != nil {
			return err
		}

		var err error
		grant, err = service.establish(context, tx, identity, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("guest_created", "user_id", grant.Bundle.User.ID)
	return grant, nil
}

// # Refresh Flow

/*
Refresh redeems a refresh secret for a new bundle.

The secret is single-use. When the request carries a live cookie session of the
same identity it is reused; otherwise a new session and window are started. A
live cookie of another identity fails without consuming the secret.

Parameters:
  - context: context.Context
  - secret: string
  - cookieSessionID: string (empty when no cookie)

Returns:
  - *Grant: Bundle with a fresh refresh secret
  - error: InvalidCredential, ExpiredRefreshCredential or store faults
*/
func (service *Service) Refresh(context context.Context, secret, cookieSessionID string) (*Grant, error) {
	var (
		grant   *Grant
		failure *apperr.AppError
	)

	err := service.store.InTx(context, func(tx session.Tx) error {
		record, err := service.credentials.Redeem(context, tx, secret)
		switch {
		case errors.Is(err, session.ErrRefreshNotFound):
			failure = apperr.InvalidCredential()
			return nil
		case errors.Is(err, session.ErrRefreshExpired):
			// Commit the deletion.
			failure = apperr.ExpiredRefreshCredential()
			return nil
		case err != nil:
			return err
		}

		identity, err := tx.Identities().ByID(context, record.IdentityID)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				failure = apperr.InvalidCredential()
				return nil
			}
			return fmt.Errorf("auth_service_refresh_identity_failed: %w", err)
		}
		if identity.IsGuest {
			service.metrics.RefreshOutcome(metrics.RefreshGuest)
			failure = apperr.InvalidCredential()
			return nil
		}

		if err := tx.Identities().Lock(context, identity.ID); err != nil {
			return err
		}

		// Reuse the cookie session when it is live and owned by this identity
		var current *session.BrowserSession
		if cookieSessionID != "" {
			validation, err := service.sessions.Validate(context, tx, cookieSessionID)
			if err != nil {
				return err
			}
			if validation.Live() {
				if validation.Session.IdentityID != identity.ID {
					return errRefreshOwnerMismatch
				}
				current = validation.Session
			}
		}

		if current == nil {
			grant, err = service.establish(context, tx, identity, true)
			return err
		}

		bundle, err := service.issuer.Issue(context, tx, identity, IssueOptions{
			IncludeRefresh: true,
			SessionID:      current.ID,
			WindowID:       current.WindowID,
		})
		if err != nil {
			return err
		}
		grant = &Grant{Bundle: bundle, Session: current}
		return nil
	})

	switch {
	case errors.Is(err, errRefreshOwnerMismatch):
		failure = apperr.InvalidCredential()
	case err != nil:
		return nil, err
	}

	if failure != nil {
		service.metrics.IdentityFailure(failure.Code)
		return nil, failure
	}
	return grant, nil
}

// # Logout Flow

/*
Logout deletes the refresh secret when one is given. With a session cookie the
session is revoked and its window closed. Without one, a known refresh secret
signs its owner out of every session and closes the latest window.

Parameters:
  - context: context.Context
  - input: LogoutInput

Returns:
  - error: Store faults only; unknown credentials are ignored
*/
func (service *Service) Logout(context context.Context, input LogoutInput) error {
	return service.store.InTx(context, func(tx session.Tx) error {
		record, err := service.credentials.Revoke(context, tx, input.RefreshToken)
		if err != nil {
			return err
		}

		if input.SessionID != "" {
			revoked, err := service.sessions.RevokeByID(context, tx, input.SessionID)
			if err != nil || revoked == nil {
				return err
			}
			_, err = service.windows.Close(context, tx, revoked.WindowID, nil)
			return err
		}

		if record == nil {
			return nil
		}

		_, err = service.signOutEverywhere(context, tx, record.IdentityID)
		return err
	})
}

/*
RevokeSessions signs the identity registered under email out of every session.
Operators use it when an account is compromised; outstanding refresh secrets
still redeem into fresh sessions until they expire.

Parameters:
  - context: context.Context
  - email: string (normalised before lookup)

Returns:
  - int: Number of sessions revoked
  - error: account.ErrNotFound or store faults
*/
func (service *Service) RevokeSessions(context context.Context, email string) (int, error) {
	var count int
	err := service.store.InTx(context, func(tx session.Tx) error {
		identity, err := tx.Identities().ByEmail(context, account.NormalizeEmail(email))
		if err != nil {
			return err
		}
		if err := tx.Identities().Lock(context, identity.ID); err != nil {
			return err
		}
		count, err = service.signOutEverywhere(context, tx, identity.ID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("auth_service_revoke_sessions_failed: %w", err)
	}
	return count, nil
}

// # Helpers

// signOutEverywhere revokes every live session of identityID and closes its
// latest open window.
func (service *Service) signOutEverywhere(context context.Context, tx session.Tx, identityID string) (int, error) {
	revoked, err := service.sessions.RevokeAllForIdentity(context, tx, identityID)
	if err != nil {
		return 0, err
	}
	if _, err := service.windows.CloseLatestOpen(context, tx, identityID); err != nil {
		return 0, err
	}

	ctxutil.GetLogger(context).Info("identity_signed_out_everywhere",
		"user_id", identityID,
		"sessions", len(revoked),
	)
	return len(revoked), nil
}

// establish starts a fresh session and window and issues the bundle for it.
func (service *Service) establish(context context.Context, tx session.Tx, identity *account.Identity, includeRefresh bool) (*Grant, error) {
	browserSession, window, err := service.sessions.Start(context, tx, identity.ID)
	if err != nil {
		return nil, err
	}

	bundle, err := service.issuer.Issue(context, tx, identity, IssueOptions{
		IncludeRefresh: includeRefresh,
		SessionID:      browserSession.ID,
		WindowID:       window.ID,
	})
	if err != nil {
		return nil, err
	}

	return &Grant{Bundle: bundle, Session: browserSession}, nil
}
