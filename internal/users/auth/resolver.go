// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"
	"net/http"

	"github.com/haii/authcore/internal/platform/apperr"
	"github.com/haii/authcore/internal/platform/metrics"
	requestutil "github.com/haii/authcore/internal/platform/request"
	"github.com/haii/authcore/internal/platform/respond"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/session"
)

// errBearerOwnerMismatch aborts the bearer transaction so the rolled expiry of
// a session the bearer does not own is never committed.
var errBearerOwnerMismatch = errors.New("bearer subject does not own its session")

// Resolver turns request credentials into an [IdentityContext].
type Resolver struct {
	store    session.Store
	sessions *session.Sessions
	codec    *sec.Codec
	metrics  *metrics.Metrics
}

// NewResolver constructs the resolver. metrics may be nil.
func NewResolver(store session.Store, sessions *session.Sessions, codec *sec.Codec, recorder *metrics.Metrics) *Resolver {
	return &Resolver{store: store, sessions: sessions, codec: codec, metrics: recorder}
}

/*
Resolve reconciles the bearer credential with the cookie candidate stashed by
the [Refresher].

With required set, absence of both is MissingCredentials. Without it, absence
is a nil identity and a bad bearer credential is a nil identity too; the
cookie is not consulted as a fallback.

Returns:
  - *IdentityContext: The caller, or nil when optional and unauthenticated
  - error: *apperr.AppError for identity failures, or store faults
*/
func (resolver *Resolver) Resolve(request *http.Request, required bool) (*IdentityContext, error) {
	bearer, err := resolver.bearer(request)
	if err != nil {
		if !required && apperr.IsAppError(err) {
			return nil, nil
		}
		return nil, err
	}

	cookie := cookieCandidate(request.Context())

	switch {
	case bearer != nil && cookie != nil && bearer.ID() != cookie.ID():
		return nil, resolver.fail(apperr.CredentialMismatch())
	case bearer != nil:
		return bearer, nil
	case cookie != nil:
		return cookie, nil
	case required:
		return nil, resolver.fail(apperr.MissingCredentials())
	default:
		return nil, nil
	}
}

// bearer resolves the Authorization header. An absent header is (nil, nil).
func (resolver *Resolver) bearer(request *http.Request) (*IdentityContext, error) {
	token, ok := requestutil.BearerToken(request)
	if !ok {
		return nil, resolver.fail(apperr.InvalidCredential())
	}
	if token == "" {
		return nil, nil
	}

	claims, err := resolver.codec.Decode(token)
	if err != nil || claims.SessionID == "" {
		return nil, resolver.fail(apperr.InvalidCredential())
	}

	var validation session.Validation
	err = resolver.store.InTx(request.Context(), func(tx session.Tx) error {
		var err error
		validation, err = resolver.sessions.Validate(request.Context(), tx, claims.SessionID)
		if err != nil {
			return err
		}

		// A dead session is revoked and its window closed; that is committed.
		if !validation.Live() {
			return nil
		}

		identity := validation.Identity
		if identity.ID != claims.Subject || identity.IsGuest != claims.Guest {
			return errBearerOwnerMismatch
		}
		return nil
	})
	switch {
	case errors.Is(err, errBearerOwnerMismatch):
		return nil, resolver.fail(apperr.InvalidCredential())
	case err != nil:
		return nil, err
	case !validation.Live():
		return nil, resolver.fail(apperr.InvalidCredential())
	}

	windowID := validation.Session.WindowID
	if windowID == "" {
		windowID = claims.WindowID
	}

	return &IdentityContext{
		Identity:  validation.Identity,
		SessionID: validation.Session.ID,
		WindowID:  windowID,
		Claims:    claims,
	}, nil
}

func (resolver *Resolver) fail(err *apperr.AppError) error {
	resolver.metrics.IdentityFailure(err.Code)
	return err
}

// # Middleware

// RequireAuth rejects unauthenticated requests and attaches the identity.
func (resolver *Resolver) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		identity, err := resolver.Resolve(request, true)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		next.ServeHTTP(writer, request.WithContext(WithIdentity(request.Context(), identity)))
	})
}

// OptionalAuth attaches the identity when one resolves and continues either way.
func (resolver *Resolver) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		identity, err := resolver.Resolve(request, false)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		if identity != nil {
			request = request.WithContext(WithIdentity(request.Context(), identity))
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole authenticates the request and then admits only the given roles.
func (resolver *Resolver) RequireRole(roles ...sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return resolver.RequireAuth(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity, _ := FromContext(request.Context())
			if err := CheckRole(identity, roles...); err != nil {
				resolver.metrics.IdentityFailure(apperr.CodeForbidden)
				respond.Error(writer, request, err)
				return
			}
			next.ServeHTTP(writer, request)
		}))
	}
}

// CheckRole returns Forbidden unless identity holds one of roles.
func CheckRole(identity *IdentityContext, roles ...sec.UserRole) error {
	if identity == nil || !identity.Role().In(roles...) {
		return apperr.Forbidden("Forbidden")
	}
	return nil
}
