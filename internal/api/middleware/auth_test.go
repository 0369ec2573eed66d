// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keydesk/internal/auth"
)

func TestRequireAdmin(t *testing.T) {
	sessions := auth.NewService(make([]byte, 64), make([]byte, 32))
	reached := false
	handler := RequireAdmin(sessions, "/keydesk/admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/keys", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/keydesk/admin", rec.Header().Get("Location"))
	assert.False(t, reached)

	login := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sessions.SaveAdmin(login, req, "admin", []*http.Cookie{{Name: "session", Value: "tok"}}))

	req = httptest.NewRequest(http.MethodPost, "/admin/keys", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, reached)
}

func TestHTTPLogger_PassesThrough(t *testing.T) {
	handler := HTTPLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
