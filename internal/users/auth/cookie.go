// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/haii/authcore/internal/users/session"
)

// Cookies writes the browser session cookie. Its value is always the session
// id, never a bearer credential.
type Cookies struct {
	name   string
	secure bool
}

// NewCookies constructs the cookie writer.
func NewCookies(name string, secure bool) *Cookies {
	return &Cookies{name: name, secure: secure}
}

// Name returns the configured cookie name.
func (cookies *Cookies) Name() string {
	return cookies.name
}

// Set stamps the cookie with a Max-Age equal to the seconds left until the
// session's current expiry.
func (cookies *Cookies) Set(writer http.ResponseWriter, browserSession *session.BrowserSession, now time.Time) {
	maxAge := browserSession.MaxAge(now)
	if maxAge <= 0 {
		cookies.Clear(writer)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     cookies.name,
		Value:    browserSession.ID,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   cookies.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear deletes the cookie on the client.
func (cookies *Cookies) Clear(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     cookies.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   cookies.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
