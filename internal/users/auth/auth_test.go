// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haii/authcore/internal/platform/middleware"
	"github.com/haii/authcore/internal/platform/respond"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/internal/users/auth"
	"github.com/haii/authcore/internal/users/session"
	"github.com/haii/authcore/pkg/uuid"
)

const cookieName = "haii_session"

// # Fixtures

type fakeClock struct {
	current time.Time
}

func (clock *fakeClock) Now() time.Time { return clock.current }

func (clock *fakeClock) Advance(step time.Duration) { clock.current = clock.current.Add(step) }

type memoryLimiter struct {
	max      int
	failures map[string]int
}

func (limiter *memoryLimiter) Blocked(_ context.Context, key string) (bool, error) {
	return limiter.failures[key] >= limiter.max, nil
}

func (limiter *memoryLimiter) RecordFailure(_ context.Context, key string) error {
	limiter.failures[key]++
	return nil
}

func (limiter *memoryLimiter) Reset(_ context.Context, key string) error {
	delete(limiter.failures, key)
	return nil
}

type harness struct {
	clock       *fakeClock
	store       *session.MemoryStore
	credentials *session.Credentials
	codec       *sec.Codec
	hasher      *sec.PasswordHasher
	limiter     *memoryLimiter
	service     *auth.Service
	resolver    *auth.Resolver
	refresher   *auth.Refresher
	router      http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := session.NewMemoryStore()
	windows := session.NewWindows(clock.Now)
	sessions := session.NewSessions(session.Policy{Rolling: 3 * time.Hour, Absolute: 24 * time.Hour}, windows, clock.Now, nil)
	credentials := session.NewCredentials(30*24*time.Hour, clock.Now, nil)

	codec, err := sec.NewCodec("test-secret", "HS256", time.Hour)
	require.NoError(t, err)
	codec = codec.WithClock(clock.Now)

	hasher := sec.NewPasswordHasher(4)
	limiter := &memoryLimiter{max: 3, failures: make(map[string]int)}

	service := auth.NewService(auth.Dependencies{
		Store:       store,
		Sessions:    sessions,
		Windows:     windows,
		Credentials: credentials,
		Issuer:      auth.NewIssuer(codec, credentials),
		Hasher:      hasher,
		Limiter:     limiter,
	})
	cookies := auth.NewCookies(cookieName, false)
	resolver := auth.NewResolver(store, sessions, codec, nil)
	refresher := auth.NewRefresher(store, sessions, cookies, clock.Now)
	handler := auth.NewHandler(service, resolver, cookies, clock.Now)

	router := chi.NewRouter()
	router.Use(refresher.Middleware)
	router.Mount("/v1/auth", handler.Routes())
	router.With(resolver.RequireRole(sec.RoleTeacher)).Get("/v1/teacher-only", func(writer http.ResponseWriter, _ *http.Request) {
		respond.OK(writer, "ok")
	})
	router.With(resolver.OptionalAuth).Get("/v1/optional", func(writer http.ResponseWriter, request *http.Request) {
		if identity, ok := auth.FromContext(request.Context()); ok {
			respond.OK(writer, identity.ID())
			return
		}
		respond.OK(writer, "anonymous")
	})

	return &harness{
		clock:       clock,
		store:       store,
		credentials: credentials,
		codec:       codec,
		hasher:      hasher,
		limiter:     limiter,
		service:     service,
		resolver:    resolver,
		refresher:   refresher,
		router:      router,
	}
}

func (h *harness) seed(t *testing.T, email, password string, role sec.UserRole) *account.Identity {
	t.Helper()

	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	identity := &account.Identity{ID: uuid.New(), Email: &email, PasswordHash: hash, Role: role}
	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		return tx.Identities().Create(context.Background(), identity)
	}))
	return identity
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(request *http.Request) { request.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(sessionID string) requestOption {
	return func(request *http.Request) { request.AddCookie(&http.Cookie{Name: cookieName, Value: sessionID}) }
}

func (h *harness) do(t *testing.T, method, path string, body any, options ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set("Content-Type", "application/json")
	for _, option := range options {
		option(request)
	}

	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, request)
	return recorder
}

type bundle struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	SessionID    string  `json:"session_id"`
	WindowID     string  `json:"activity_window_id"`
	User         struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		IsGuest bool   `json:"is_guest"`
	} `json:"user"`
}

func decodeBundle(t *testing.T, recorder *httptest.ResponseRecorder) bundle {
	t.Helper()

	var envelope struct {
		Data bundle `json:"data"`
	}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	return envelope.Data
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) respond.ErrorEnvelope {
	t.Helper()

	var envelope respond.ErrorEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	return envelope
}

func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == cookieName {
			return cookie
		}
	}
	return nil
}

func (h *harness) login(t *testing.T, email, password string) bundle {
	t.Helper()

	recorder := h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	return decodeBundle(t, recorder)
}

func assertIdentityFailure(t *testing.T, recorder *httptest.ResponseRecorder, code string) {
	t.Helper()

	require.Equal(t, http.StatusUnauthorized, recorder.Code, recorder.Body.String())
	envelope := decodeError(t, recorder)
	assert.Equal(t, code, envelope.Code)
	assert.Equal(t, "Invalid credentials", envelope.Error)
}

// # Login

/*
TestLogin_IssuesBundleAndCookie verifies the bundle, the claims and the cookie
attributes of a successful login.
*/
func TestLogin_IssuesBundleAndCookie(t *testing.T) {
	h := newHarness(t)
	identity := h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)

	recorder := h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "  ADA@example.com ", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, recorder.Code)

	cookie := sessionCookie(recorder)
	body := decodeBundle(t, recorder)

	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, 3600, body.ExpiresIn)
	require.NotNil(t, body.RefreshToken)
	assert.Equal(t, identity.ID, body.User.ID)

	claims, err := h.codec.Decode(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, claims.Subject)
	assert.Equal(t, body.SessionID, claims.SessionID)
	assert.Equal(t, body.WindowID, claims.WindowID)
	assert.False(t, claims.Guest)

	require.NotNil(t, cookie)
	assert.Equal(t, body.SessionID, cookie.Value)
	assert.Equal(t, 3*60*60, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))
}

/*
TestLogin_SecondLoginKillsFirstSession verifies a new login leaves only one live
session, and the stale cookie is cleared on its next use.
*/
func TestLogin_SecondLoginKillsFirstSession(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)

	first := h.login(t, "ada@example.com", "correct-horse")
	second := h.login(t, "ada@example.com", "correct-horse")
	require.NotEqual(t, first.SessionID, second.SessionID)

	recorder := h.do(t, http.MethodGet, "/v1/auth/me", nil, withCookie(first.SessionID))
	assertIdentityFailure(t, recorder, "MISSING_CREDENTIALS")
	cleared := sessionCookie(recorder)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(first.AccessToken)), "INVALID_CREDENTIAL")
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(second.AccessToken)).Code)
}

/*
TestLogin_FailuresAreIndistinguishable verifies unknown email and wrong password
produce the same response.
*/
func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)

	tests := []struct {
		name  string
		email string
	}{
		{name: "wrong password", email: "ada@example.com"},
		{name: "unknown email", email: "nobody@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": tt.email, "password": "wrong-password"})
			assertIdentityFailure(t, recorder, "INVALID_CREDENTIAL")
			assert.Nil(t, sessionCookie(recorder))
		})
	}
}

/*
TestLogin_Throttled verifies that after the failure limit even the right
password is refused with the same generic error.
*/
func TestLogin_Throttled(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)

	for range 3 {
		h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "nope-nope"})
	}

	recorder := h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "correct-horse"})
	assertIdentityFailure(t, recorder, "INVALID_CREDENTIAL")

	delete(h.limiter.failures, "ada@example.com")
	h.login(t, "ada@example.com", "correct-horse")
}

/*
TestLogin_Validation verifies missing fields are a 400, not an identity failure.
*/
func TestLogin_Validation(t *testing.T) {
	h := newHarness(t)

	recorder := h.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// # Guest

/*
TestGuest_NoRefreshSecret verifies guests get a guest claim and never a refresh
secret.
*/
func TestGuest_NoRefreshSecret(t *testing.T) {
	h := newHarness(t)

	recorder := h.do(t, http.MethodPost, "/v1/auth/guest", map[string]string{"first_name": "Lin"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	require.NotNil(t, sessionCookie(recorder))

	body := decodeBundle(t, recorder)
	assert.Nil(t, body.RefreshToken)
	assert.True(t, body.User.IsGuest)
	assert.Equal(t, "student", body.User.Role)

	claims, err := h.codec.Decode(body.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.Guest)

	me := h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(body.AccessToken))
	assert.Equal(t, http.StatusOK, me.Code)
}

/*
TestRefresh_GuestSecretRejected verifies a refresh secret owned by a guest is
deleted and refused.
*/
func TestRefresh_GuestSecretRejected(t *testing.T) {
	h := newHarness(t)
	guest := decodeBundle(t, h.do(t, http.MethodPost, "/v1/auth/guest", map[string]string{"first_name": "Lin"}))

	var secret string
	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		var err error
		secret, _, err = h.credentials.Issue(context.Background(), tx, guest.User.ID)
		return err
	}))

	assertIdentityFailure(t, h.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": secret}), "INVALID_CREDENTIAL")

	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		record, err := tx.RefreshCredential(context.Background(), sec.HashToken(secret))
		assert.Nil(t, record)
		return err
	}))
}

// # Registration

/*
TestRegister_Rules verifies roles, uniqueness and the admin restriction.
*/
func TestRegister_Rules(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "root@example.com", "administrator", sec.RoleAdmin)
	admin := h.login(t, "root@example.com", "administrator")

	student := map[string]any{"email": "kid@example.com", "password": "password1", "role": "student", "first_name": "Kid"}

	// Admins may not enroll students.
	recorder := h.do(t, http.MethodPost, "/v1/auth/register", student, withBearer(admin.AccessToken))
	require.Equal(t, http.StatusForbidden, recorder.Code, recorder.Body.String())

	// Anyone else may.
	recorder = h.do(t, http.MethodPost, "/v1/auth/register", student)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	body := decodeBundle(t, recorder)
	assert.NotNil(t, body.RefreshToken)
	assert.Equal(t, "student", body.User.Role)
	assert.NotNil(t, sessionCookie(recorder))

	// Emails are unique after normalisation.
	duplicate := map[string]any{"email": "KID@example.com", "password": "password1", "role": "teacher"}
	recorder = h.do(t, http.MethodPost, "/v1/auth/register", duplicate)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Admins may enroll teachers.
	teacher := map[string]any{"email": "teach@example.com", "password": "password1", "role": "teacher"}
	recorder = h.do(t, http.MethodPost, "/v1/auth/register", teacher, withBearer(admin.AccessToken))
	assert.Equal(t, http.StatusCreated, recorder.Code)

	// Nobody self-registers as admin.
	root := map[string]any{"email": "root2@example.com", "password": "password1", "role": "admin"}
	recorder = h.do(t, http.MethodPost, "/v1/auth/register", root)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// # Refresh

/*
TestRefresh_SingleUse verifies a redeemed secret cannot be redeemed again and
that redemption without a cookie starts a new session.
*/
func TestRefresh_SingleUse(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	recorder := h.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": *login.RefreshToken})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	refreshed := decodeBundle(t, recorder)

	assert.NotEqual(t, login.SessionID, refreshed.SessionID)
	require.NotNil(t, refreshed.RefreshToken)
	assert.NotEqual(t, *login.RefreshToken, *refreshed.RefreshToken)
	assert.Equal(t, refreshed.SessionID, sessionCookie(recorder).Value)

	again := h.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": *login.RefreshToken})
	assertIdentityFailure(t, again, "INVALID_CREDENTIAL")
}

/*
TestRefresh_ReusesLiveCookieSession verifies a live cookie session of the same
identity is kept rather than replaced.
*/
func TestRefresh_ReusesLiveCookieSession(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	h.clock.Advance(time.Hour)
	recorder := h.do(t, http.MethodPost, "/v1/auth/refresh",
		map[string]string{"refresh_token": *login.RefreshToken},
		withCookie(login.SessionID),
	)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	refreshed := decodeBundle(t, recorder)
	assert.Equal(t, login.SessionID, refreshed.SessionID)
	assert.Equal(t, login.WindowID, refreshed.WindowID)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, 3*60*60, cookies[0].MaxAge)
}

/*
TestRefresh_ForeignCookieConsumesNothing verifies a live cookie of another
identity fails the refresh and leaves the secret redeemable.
*/
func TestRefresh_ForeignCookieConsumesNothing(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	h.seed(t, "bob@example.com", "battery-staple", sec.RoleStudent)
	ada := h.login(t, "ada@example.com", "correct-horse")
	bob := h.login(t, "bob@example.com", "battery-staple")

	recorder := h.do(t, http.MethodPost, "/v1/auth/refresh",
		map[string]string{"refresh_token": *ada.RefreshToken},
		withCookie(bob.SessionID),
	)
	assertIdentityFailure(t, recorder, "INVALID_CREDENTIAL")

	recorder = h.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": *ada.RefreshToken})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestRefresh_Expired verifies an expired secret is reported, deleted, and then
unknown.
*/
func TestRefresh_Expired(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	h.clock.Advance(30 * 24 * time.Hour)

	body := map[string]string{"refresh_token": *login.RefreshToken}
	assertIdentityFailure(t, h.do(t, http.MethodPost, "/v1/auth/refresh", body), "EXPIRED_REFRESH_CREDENTIAL")
	assertIdentityFailure(t, h.do(t, http.MethodPost, "/v1/auth/refresh", body), "INVALID_CREDENTIAL")
}

// # Logout

/*
TestLogout_WithCookie verifies the cookie is cleared, the session revoked, the
window closed and the refresh secret dead.
*/
func TestLogout_WithCookie(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	recorder := h.do(t, http.MethodPost, "/v1/auth/logout",
		map[string]string{"refresh_token": *login.RefreshToken},
		withCookie(login.SessionID),
	)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)

	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		stored, err := tx.Session(context.Background(), login.SessionID)
		require.NoError(t, err)
		assert.NotNil(t, stored.RevokedAt)

		window, err := tx.Window(context.Background(), login.WindowID)
		require.NoError(t, err)
		assert.NotNil(t, window.EndedAt)
		return nil
	}))

	refresh := h.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": *login.RefreshToken})
	assertIdentityFailure(t, refresh, "INVALID_CREDENTIAL")
}

/*
TestLogout_RefreshOnlySignsOutEverywhere verifies a logout carrying only the
refresh secret revokes the owner's sessions and closes the latest window.
*/
func TestLogout_RefreshOnlySignsOutEverywhere(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	recorder := h.do(t, http.MethodPost, "/v1/auth/logout", map[string]string{"refresh_token": *login.RefreshToken})
	require.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Nil(t, sessionCookie(recorder))

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(login.AccessToken)), "INVALID_CREDENTIAL")

	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		window, err := tx.Window(context.Background(), login.WindowID)
		require.NoError(t, err)
		assert.NotNil(t, window.EndedAt)
		return nil
	}))
}

/*
TestLogout_Anonymous verifies logout with nothing is still a 204.
*/
func TestLogout_Anonymous(t *testing.T) {
	h := newHarness(t)

	request := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

/*
TestRevokeSessions_OperatorSignOut verifies the operator path revokes live
sessions by email and reports unknown emails.
*/
func TestRevokeSessions_OperatorSignOut(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	count, err := h.service.RevokeSessions(context.Background(), "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(login.AccessToken)), "INVALID_CREDENTIAL")

	_, err = h.service.RevokeSessions(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

// # Resolver

/*
TestResolver_CredentialMismatch verifies a bearer for one identity and a cookie
for another are rejected rather than resolved to either.
*/
func TestResolver_CredentialMismatch(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	h.seed(t, "bob@example.com", "battery-staple", sec.RoleStudent)
	ada := h.login(t, "ada@example.com", "correct-horse")
	bob := h.login(t, "bob@example.com", "battery-staple")

	recorder := h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(ada.AccessToken), withCookie(bob.SessionID))
	assertIdentityFailure(t, recorder, "CREDENTIAL_MISMATCH")

	recorder = h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(ada.AccessToken), withCookie(ada.SessionID))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestResolver_BadBearer verifies malformed, tampered and non-bearer headers.
*/
func TestResolver_BadBearer(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	foreign, err := sec.NewCodec("another-secret", "HS256", time.Hour)
	require.NoError(t, err)
	forged, _, err := foreign.Encode(sec.Subject{ID: login.User.ID, Role: sec.RoleTeacher}, login.SessionID, login.WindowID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "garbage", header: "Bearer not-a-token"},
		{name: "forged", header: "Bearer " + forged},
		{name: "wrong scheme", header: "Basic " + login.AccessToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := h.do(t, http.MethodGet, "/v1/auth/me", nil, func(request *http.Request) {
				request.Header.Set("Authorization", tt.header)
			})
			assertIdentityFailure(t, recorder, "INVALID_CREDENTIAL")
		})
	}
}

/*
TestResolver_BearerWithoutSession verifies a validly signed bearer with no sid
claim is refused.
*/
func TestResolver_BearerWithoutSession(t *testing.T) {
	h := newHarness(t)
	identity := h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)

	token, _, err := h.codec.Encode(identity.Subject(), "", "")
	require.NoError(t, err)

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(token)), "INVALID_CREDENTIAL")
}

/*
TestResolver_ExpiredBearer verifies a bearer past its exp is refused even while
its session lives.
*/
func TestResolver_ExpiredBearer(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	h.clock.Advance(time.Hour)

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/auth/me", nil, withBearer(login.AccessToken)), "INVALID_CREDENTIAL")
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/auth/me", nil, withCookie(login.SessionID)).Code)
}

/*
TestResolver_Optional verifies anonymous access, cookie resolution, and that a
bad bearer does not fall back to the cookie.
*/
func TestResolver_Optional(t *testing.T) {
	h := newHarness(t)
	identity := h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	anonymous := h.do(t, http.MethodGet, "/v1/optional", nil)
	assert.Contains(t, anonymous.Body.String(), "anonymous")

	viaCookie := h.do(t, http.MethodGet, "/v1/optional", nil, withCookie(login.SessionID))
	assert.Contains(t, viaCookie.Body.String(), identity.ID)

	badBearer := h.do(t, http.MethodGet, "/v1/optional", nil, withBearer("junk"), withCookie(login.SessionID))
	assert.Equal(t, http.StatusOK, badBearer.Code)
	assert.Contains(t, badBearer.Body.String(), "anonymous")
}

/*
TestResolver_RequireRole verifies wrong roles are a 403, distinct from 401.
*/
func TestResolver_RequireRole(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	h.seed(t, "bob@example.com", "battery-staple", sec.RoleStudent)
	teacher := h.login(t, "ada@example.com", "correct-horse")
	student := h.login(t, "bob@example.com", "battery-staple")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/teacher-only", nil, withBearer(teacher.AccessToken)).Code)

	forbidden := h.do(t, http.MethodGet, "/v1/teacher-only", nil, withBearer(student.AccessToken))
	require.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, forbidden).Code)

	assertIdentityFailure(t, h.do(t, http.MethodGet, "/v1/teacher-only", nil), "MISSING_CREDENTIALS")
}

// # Refresher

/*
TestRefresher_RollsAndClearsCookie verifies cookie-only traffic extends the
session and that a dead cookie is cleared.
*/
func TestRefresher_RollsAndClearsCookie(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	h.clock.Advance(2 * time.Hour)
	rolled := sessionCookie(h.do(t, http.MethodGet, "/v1/optional", nil, withCookie(login.SessionID)))
	require.NotNil(t, rolled)
	assert.Equal(t, login.SessionID, rolled.Value)
	assert.Equal(t, 3*60*60, rolled.MaxAge)

	h.clock.Advance(3 * time.Hour)
	recorder := h.do(t, http.MethodGet, "/v1/optional", nil, withCookie(login.SessionID))
	assert.Contains(t, recorder.Body.String(), "anonymous")
	cleared := sessionCookie(recorder)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	unknown := sessionCookie(h.do(t, http.MethodGet, "/v1/optional", nil, withCookie("never-issued")))
	require.NotNil(t, unknown)
	assert.Negative(t, unknown.MaxAge)
}

/*
TestRefresher_RestampsOnErrorResponses verifies the cookie is written even when
the handler fails.
*/
func TestRefresher_RestampsOnErrorResponses(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleStudent)
	login := h.login(t, "ada@example.com", "correct-horse")

	recorder := h.do(t, http.MethodGet, "/v1/teacher-only", nil, withCookie(login.SessionID))
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.NotNil(t, sessionCookie(recorder))
}

/*
TestRefresher_WritesCookieWhenHandlerPanics verifies the cookie decision still
reaches the client when an inner handler panics and an outer recovery layer
writes the 500.
*/
func TestRefresher_WritesCookieWhenHandlerPanics(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	router := chi.NewRouter()
	router.Use(middleware.PanicRecovery(slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.Use(h.refresher.Middleware)
	router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	tests := []struct {
		name        string
		sessionID   string
		expectClear bool
	}{
		{name: "dead session", sessionID: "dead-session", expectClear: true},
		{name: "live session", sessionID: login.SessionID, expectClear: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/boom", nil)
			withCookie(tt.sessionID)(request)
			recorder := httptest.NewRecorder()

			router.ServeHTTP(recorder, request)

			assert.Equal(t, http.StatusInternalServerError, recorder.Code)
			cookie := sessionCookie(recorder)
			require.NotNil(t, cookie)
			if tt.expectClear {
				assert.Negative(t, cookie.MaxAge)
				return
			}
			assert.Equal(t, login.SessionID, cookie.Value)
			assert.Positive(t, cookie.MaxAge)
		})
	}
}

/*
TestRefresher_RequestLogCarriesUserID verifies the request log names the
caller resolved from the cookie or the bearer credential.
*/
func TestRefresher_RequestLogCarriesUserID(t *testing.T) {
	h := newHarness(t)
	identity := h.seed(t, "ada@example.com", "correct-horse", sec.RoleTeacher)
	login := h.login(t, "ada@example.com", "correct-horse")

	var buffer bytes.Buffer
	router := chi.NewRouter()
	router.Use(middleware.StructuredLogger(slog.New(slog.NewJSONHandler(&buffer, nil))))
	router.Use(h.refresher.Middleware)
	router.With(h.resolver.RequireAuth).Get("/whoami", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		option requestOption
		expect any
	}{
		{name: "cookie", option: withCookie(login.SessionID), expect: identity.ID},
		{name: "bearer", option: withBearer(login.AccessToken), expect: identity.ID},
		{name: "anonymous", option: func(*http.Request) {}, expect: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer.Reset()
			request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.option(request)
			router.ServeHTTP(httptest.NewRecorder(), request)

			lines := bytes.Split(bytes.TrimSpace(buffer.Bytes()), []byte("\n"))
			var entry map[string]any
			require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
			assert.Equal(t, "http_request_finished", entry["msg"])
			assert.Equal(t, tt.expect, entry["user_id"])
		})
	}
}

// # Issuer

/*
TestIssuer_GuestNeverGetsRefresh verifies the guest rule holds even when the
caller asks for a refresh secret.
*/
func TestIssuer_GuestNeverGetsRefresh(t *testing.T) {
	h := newHarness(t)
	issuer := auth.NewIssuer(h.codec, h.credentials)
	guest := &account.Identity{ID: uuid.New(), Role: sec.RoleStudent, IsGuest: true}

	require.NoError(t, h.store.InTx(context.Background(), func(tx session.Tx) error {
		bundle, err := issuer.Issue(context.Background(), tx, guest, auth.IssueOptions{IncludeRefresh: true, SessionID: "sid"})
		require.NoError(t, err)
		assert.Nil(t, bundle.RefreshToken)
		assert.Equal(t, "sid", bundle.SessionID)
		return nil
	}))
}
