// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/haii/authcore/internal/platform/ctxutil"
	"github.com/haii/authcore/internal/platform/respond"
	requestutil "github.com/haii/authcore/internal/platform/request"
	"github.com/haii/authcore/internal/users/session"
)

// Refresher validates the session cookie once per request and keeps the
// browser's copy in step with the stored session.
type Refresher struct {
	store    session.Store
	sessions *session.Sessions
	cookies  *Cookies
	clock    session.Clock
}

// NewRefresher constructs the middleware.
func NewRefresher(store session.Store, sessions *session.Sessions, cookies *Cookies, clock session.Clock) *Refresher {
	return &Refresher{store: store, sessions: sessions, cookies: cookies, clock: clock}
}

/*
Middleware runs before any handler.

A live cookie session becomes the request's cookie candidate and is re-stamped
with its rolled expiry when the response starts. A dead or unknown one is
cleared. Handlers that set their own cookie call [SkipCookieRefresh].
*/
func (refresher *Refresher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		state := &requestState{}

		// 1. Resolve the cookie, if any, in its own transaction
		var (
			refreshed   *session.BrowserSession
			clearCookie bool
		)
		if sessionID := requestutil.Cookie(request, refresher.cookies.Name()); sessionID != "" {
			var validation session.Validation
			err := refresher.store.InTx(request.Context(), func(tx session.Tx) error {
				var err error
				validation, err = refresher.sessions.Validate(request.Context(), tx, sessionID)
				return err
			})
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			if validation.Live() {
				refreshed = validation.Session
				state.cookie = &IdentityContext{
					Identity:  validation.Identity,
					SessionID: validation.Session.ID,
					WindowID:  validation.Session.WindowID,
				}
				ctxutil.SetUserID(request.Context(), validation.Identity.ID)
			} else {
				clearCookie = true
			}
		}

		// 2. Run the handler; the cookie is written just before the response starts
		wrapped := &cookieWriter{ResponseWriter: writer}
		wrapped.finalize = func() {
			if state.skipCookie {
				return
			}
			switch {
			case refreshed != nil:
				refresher.cookies.Set(writer, refreshed, refresher.clock.Now())
			case clearCookie:
				refresher.cookies.Clear(writer)
			}
		}

		// 3. Handlers that never wrote, or panicked, still get their cookie
		defer wrapped.commit()

		next.ServeHTTP(wrapped, request.WithContext(withState(request.Context(), state)))
	})
}

// cookieWriter delays cookie decisions until the handler commits the response
// headers.
type cookieWriter struct {
	http.ResponseWriter
	finalize  func()
	committed bool
}

func (writer *cookieWriter) commit() {
	if writer.committed {
		return
	}
	writer.committed = true
	writer.finalize()
}

func (writer *cookieWriter) WriteHeader(statusCode int) {
	writer.commit()
	writer.ResponseWriter.WriteHeader(statusCode)
}

func (writer *cookieWriter) Write(body []byte) (int, error) {
	writer.commit()
	return writer.ResponseWriter.Write(body)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (writer *cookieWriter) Unwrap() http.ResponseWriter {
	return writer.ResponseWriter
}
