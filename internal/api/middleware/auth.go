// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/auth"
)

// RequireAdmin sends requests without an admin session to loginURL
func RequireAdmin(sessions *auth.Service, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions.Admin(r) == nil {
				log.Debug().Str("path", r.URL.Path).Msg("No admin session, redirecting to login")
				http.Redirect(w, r, loginURL, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PlaintextCSRF marks requests that did not arrive over TLS so the CSRF
// check does not demand an https Referer. Requests forwarded by a TLS
// terminating proxy keep the strict check.
func PlaintextCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}
