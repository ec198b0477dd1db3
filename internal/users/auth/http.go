// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haii/authcore/internal/platform/apperr"
	requestutil "github.com/haii/authcore/internal/platform/request"
	"github.com/haii/authcore/internal/platform/respond"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/platform/validate"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/internal/users/session"
)

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
type Handler struct {
	authService *Service
	resolver    *Resolver
	cookies     *Cookies
	clock       session.Clock
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, resolver *Resolver, cookies *Cookies, clock session.Clock) *Handler {
	return &Handler{authService: service, resolver: resolver, cookies: cookies, clock: clock}
}

// Routes returns a [chi.Router] configured with authentication routes. The
// [Refresher] middleware must run in front of it.
//
// # Endpoints
//   - POST /login    : Email and password sign-in.
//   - POST /register : Teacher or student enrollment.
//   - POST /guest    : Guest student entry.
//   - POST /refresh  : Refresh secret redemption.
//   - POST /logout   : Sign-out.
//   - GET  /me       : The resolved caller.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/login", handler.login)
	router.With(handler.resolver.OptionalAuth).Post("/register", handler.register)
	router.Post("/guest", handler.guest)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	router.With(handler.resolver.RequireAuth).Get("/me", handler.me)

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type guestRequest struct {
	FirstName string `json:"first_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	User      *account.Identity `json:"user"`
	SessionID string            `json:"session_id,omitempty"`
	WindowID  string            `json:"activity_window_id,omitempty"`
	Guest     bool              `json:"guest"`
}

/*
Login authenticates with email and password.

POST /v1/auth/login

Response:
  - 200: TokenBundle, plus the session cookie
  - 401: INVALID_CREDENTIAL
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(account.FieldEmail, input.Email).
		Required(account.FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establishCookie(writer, request, grant)
	respond.OK(writer, grant.Bundle)
}

/*
Register enrolls a teacher or student and signs them in.

POST /v1/auth/register

Response:
  - 201: TokenBundle, plus the session cookie
  - 400: VALIDATION_ERROR
  - 403: FORBIDDEN (admin caller registering a student)
  - 409: CONFLICT (email already registered)
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(account.FieldEmail, input.Email).
		Email(account.FieldEmail, input.Email).
		Required(account.FieldPassword, input.Password).
		MinLen(account.FieldPassword, input.Password, 8).
		MaxLen(account.FieldPassword, input.Password, 72).
		OneOf(account.FieldRole, input.Role, string(sec.RoleTeacher), string(sec.RoleStudent))
	if input.FirstName != nil {
		validator.MaxLen(account.FieldFirstName, *input.FirstName, 100)
	}
	if input.LastName != nil {
		validator.MaxLen(account.FieldLastName, *input.LastName, 100)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	caller, _ := FromContext(request.Context())

	grant, err := handler.authService.Register(request.Context(), caller, RegisterInput{
		Email:     input.Email,
		Password:  input.Password,
		Role:      sec.UserRole(input.Role),
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establishCookie(writer, request, grant)
	respond.Created(writer, grant.Bundle)
}

/*
Guest creates a guest student.

POST /v1/auth/guest

Response:
  - 201: TokenBundle with a null refresh_token, plus the session cookie
  - 400: VALIDATION_ERROR
*/
func (handler *Handler) guest(writer http.ResponseWriter, request *http.Request) {
	var input guestRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(account.FieldFirstName, input.FirstName).
		MaxLen(account.FieldFirstName, input.FirstName, 100)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.authService.Guest(request.Context(), GuestInput{FirstName: input.FirstName})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establishCookie(writer, request, grant)
	respond.Created(writer, grant.Bundle)
}

/*
Refresh redeems a refresh secret.

POST /v1/auth/refresh

Response:
  - 200: TokenBundle, plus the session cookie
  - 401: INVALID_CREDENTIAL or EXPIRED_REFRESH_CREDENTIAL
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError("refresh_token", "is required"))
		return
	}

	cookieSessionID := requestutil.Cookie(request, handler.cookies.Name())

	grant, err := handler.authService.Refresh(request.Context(), input.RefreshToken, cookieSessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establishCookie(writer, request, grant)
	respond.OK(writer, grant.Bundle)
}

/*
Logout signs the caller out. Unknown credentials are not an error.

POST /v1/auth/logout

Response:
  - 204: No Content
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	var input logoutRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	cookieSessionID := requestutil.Cookie(request, handler.cookies.Name())

	err := handler.authService.Logout(request.Context(), LogoutInput{
		RefreshToken: input.RefreshToken,
		SessionID:    cookieSessionID,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if cookieSessionID != "" {
		SkipCookieRefresh(request.Context())
		handler.cookies.Clear(writer)
	}
	respond.NoContent(writer)
}

/*
Me returns the resolved caller.

GET /v1/auth/me

Response:
  - 200: meResponse
  - 401: MISSING_CREDENTIALS, INVALID_CREDENTIAL or CREDENTIAL_MISMATCH
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	identity, ok := FromContext(request.Context())
	if !ok {
		respond.Error(writer, request, apperr.MissingCredentials())
		return
	}

	respond.OK(writer, meResponse{
		User:      identity.Identity,
		SessionID: identity.SessionID,
		WindowID:  identity.WindowID,
		Guest:     identity.Guest(),
	})
}

// establishCookie writes the authoritative cookie for a new or reused session
// and stops the refresher from overwriting it.
func (handler *Handler) establishCookie(writer http.ResponseWriter, request *http.Request, grant *Grant) {
	SkipCookieRefresh(request.Context())
	handler.cookies.Set(writer, grant.Session, handler.clock.Now())
}
