// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keydesk/internal/challenge"
	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/models"
)

func newTestService() *Service {
	hashKey := make([]byte, 64)
	blockKey := make([]byte, 32)
	for i := range hashKey {
		hashKey[i] = byte(i)
	}
	for i := range blockKey {
		blockKey[i] = byte(i * 3)
	}
	return NewService(hashKey, blockKey)
}

// replay builds a request carrying the cookies set on rec. A cookie set
// more than once keeps its last value, as in a browser.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	latest := map[string]*http.Cookie{}
	var order []string
	for _, c := range rec.Result().Cookies() {
		if _, seen := latest[c.Name]; !seen {
			order = append(order, c.Name)
		}
		latest[c.Name] = c
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, name := range order {
		req.AddCookie(latest[name])
	}
	return req
}

func TestKioskState_RoundTrip(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	state := svc.KioskState(req)

	_, err := state.Get(t.Context(), models.StateLastKeyGenerated)
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	require.NoError(t, state.Set(t.Context(), models.StateLastKeyGenerated, "2025-03-01T12:00:00Z"))

	rec := httptest.NewRecorder()
	require.NoError(t, state.Save(rec, req))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, KioskSessionName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)
	assert.NotContains(t, cookies[0].Value, "2025-03-01")

	restored := svc.KioskState(replay(rec))
	value, err := restored.Get(t.Context(), models.StateLastKeyGenerated)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", value)
}

func TestSession_SecureBehindTLSProxy(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	rec := httptest.NewRecorder()
	require.NoError(t, svc.KioskState(req).Save(rec, req))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}

func TestSession_ForeignKeyStartsFresh(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	state := svc.KioskState(req)
	require.NoError(t, state.Set(t.Context(), models.StateLastKeyGenerated, "x"))
	rec := httptest.NewRecorder()
	require.NoError(t, state.Save(rec, req))

	other := NewService(make([]byte, 64), make([]byte, 32))
	_, err := other.KioskState(replay(rec)).Get(t.Context(), models.StateLastKeyGenerated)
	assert.ErrorIs(t, err, models.ErrStateNotFound)
}

func TestWizard_RoundTrip(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, svc.Wizard(req))

	wizard := kiosk.NewSession(challenge.KindMath)
	wizard.Name = "Ann"
	wizard.Step = kiosk.StepVerification
	wizard.Problem = &challenge.Arithmetic{A: 3, B: 4}

	rec := httptest.NewRecorder()
	require.NoError(t, svc.SaveWizard(rec, req, wizard))

	restored := svc.Wizard(replay(rec))
	require.NotNil(t, restored)
	assert.Equal(t, wizard.ID, restored.ID)
	assert.Equal(t, kiosk.StepVerification, restored.Step)
	assert.Equal(t, 7, restored.Problem.Answer())
}

func TestAdmin_SaveAndClear(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, svc.Admin(req))

	rec := httptest.NewRecorder()
	require.NoError(t, svc.SaveAdmin(rec, req, "admin", []*http.Cookie{{Name: "session", Value: "tok"}}))

	req = replay(rec)
	session := svc.Admin(req)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "admin", session.Username)
	require.Len(t, session.Cookies, 1)
	assert.Equal(t, "tok", session.Cookies[0].Value)

	rec = httptest.NewRecorder()
	require.NoError(t, svc.ClearAdmin(rec, req))
	assert.Nil(t, svc.Admin(replay(rec)))
}

func TestFlashes_AreOneShot(t *testing.T) {
	svc := newTestService()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	svc.AddFlash(rec, req, "error", "first")
	svc.AddFlash(rec, req, "error", "second")
	svc.AddFlash(rec, req, "key", "KEY-1")

	req = replay(rec)
	assert.Equal(t, []string{"first", "second"}, svc.Flashes(req, "error"))
	assert.Equal(t, []string{"KEY-1"}, svc.Flashes(req, "key"))

	rec = httptest.NewRecorder()
	require.NoError(t, svc.SaveFlashes(rec, req))
	assert.Empty(t, svc.Flashes(replay(rec), "error"))
}

func TestEncodeDecodeCookies(t *testing.T) {
	raw, err := EncodeCookies([]*http.Cookie{
		{Name: "session", Value: "abc", Path: "/api", HttpOnly: true},
		{Name: "remember", Value: "1"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"session","value":"abc"},{"name":"remember","value":"1"}]`, raw)

	cookies, err := DecodeCookies(raw)
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "abc", cookies[0].Value)

	_, err = DecodeCookies("not json")
	assert.Error(t, err)
}
