// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/config"
	"github.com/autobrr/keydesk/internal/domain"
	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/metrics"
	"github.com/autobrr/keydesk/internal/web"
)

var (
	csrfPattern    = regexp.MustCompile(`name="gorilla.csrf.Token" value="([^"]+)"`)
	problemPattern = regexp.MustCompile(`What is (\d+) \+ (\d+)\?`)
	timerPattern   = regexp.MustCompile(`id="rateLimitTimer">(\d{2}:\d{2}:\d{2})<`)
)

// fakeLicenseAPI is a minimal license backend with one admin account
type fakeLicenseAPI struct {
	mu       sync.Mutex
	loggedIn map[string]bool
	calls    []string
}

func newFakeLicenseAPI() *fakeLicenseAPI {
	return &fakeLicenseAPI{loggedIn: map[string]bool{}}
}

func (f *fakeLicenseAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLicenseAPI) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

// expireAll drops every upstream session
func (f *fakeLicenseAPI) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = map[string]bool{}
}

func (f *fakeLicenseAPI) authorized(r *http.Request) bool {
	cookie, err := r.Cookie("session")
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn[cookie.Value]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeLicenseAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.record(r.Method + " " + r.URL.Path)

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/api/public-generate":
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"license_key": "TRIAL-AAAA-BBBB-CCCC",
			"created_at":  time.Now().UTC().Format("2006-01-02T15:04:05"),
			"expires_at":  time.Now().UTC().Add(7 * 24 * time.Hour).Format("2006-01-02T15:04:05"),
		})

	case r.URL.Path == "/api/login":
		if body["username"] != "admin" || body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		f.mu.Lock()
		token := "tok-" + strconv.Itoa(len(f.calls))
		f.loggedIn[token] = true
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: token, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case r.URL.Path == "/api/logout":
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case r.URL.Path == "/api/verify":
		if body["license_key"] == "GOOD-KEY" {
			writeJSON(w, http.StatusOK, map[string]any{
				"valid":           true,
				"customer_name":   "Acme",
				"key_type":        "PREMIUM",
				"expires_at":      "2030-01-01T00:00:00",
				"activations":     1,
				"max_activations": 3,
			})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"valid": false, "message": "License key not found"})

	case !f.authorized(r):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})

	case r.URL.Path == "/api/keys":
		writeJSON(w, http.StatusOK, map[string]any{"keys": []map[string]any{
			{"customer_name": "Acme Corp", "key": "PREM-****", "key_type": "PREMIUM", "created_at": "2025-01-01T00:00:00",
				"expires_at": "2026-01-01T00:00:00", "activations": 1, "max_activations": 3, "status": "active", "key_hash": "h1"},
			{"customer_name": "Globex", "key": "STAN-****", "key_type": "STANDARD", "created_at": "2025-02-01T00:00:00",
				"expires_at": "2026-02-01T00:00:00", "activations": 0, "max_activations": 1, "status": "inactive", "key_hash": "h2"},
		}})

	case r.URL.Path == "/api/generate":
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"license_key": "ENTR-1111-2222-3333",
			"created_at":  "2025-03-01T00:00:00",
			"expires_at":  "2026-03-01T00:00:00",
		})

	case strings.HasSuffix(r.URL.Path, "/toggle"):
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "inactive"})

	case r.Method == http.MethodDelete:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
}

type testServer struct {
	url    string
	api    *fakeLicenseAPI
	client *http.Client
}

type routerOption func(*Dependencies)

func newTestServer(t *testing.T, opts ...routerOption) *testServer {
	t.Helper()

	fake := newFakeLicenseAPI()
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	cfg := &config.AppConfig{Config: &domain.Config{
		SessionSecret:  "test-session-secret-that-is-long-enough",
		MetricsEnabled: true,
	}}

	keys, err := cfg.GetSessionKeys()
	require.NoError(t, err)

	prober, err := licenseapi.NewClient(upstream.URL)
	require.NoError(t, err)
	manager := metrics.NewManager("test", cfg.Config.Kiosk, prober)

	client, err := licenseapi.NewClient(upstream.URL, licenseapi.WithObserver(manager))
	require.NoError(t, err)

	webHandler, err := web.NewHandler("test", "")
	require.NoError(t, err)

	deps := &Dependencies{
		Config:         cfg,
		API:            client,
		Sessions:       auth.NewService(keys.HashKey, keys.BlockKey),
		MetricsManager: manager,
		WebHandler:     webHandler,
	}
	for _, opt := range opts {
		opt(deps)
	}

	router, err := NewRouter(deps)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		url:    srv.URL,
		api:    fake,
		client: &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := s.client.Get(s.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// post submits form from the page at from, carrying its CSRF token
func (s *testServer) post(t *testing.T, from, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	_, page := s.get(t, from)
	match := csrfPattern.FindStringSubmatch(page)
	require.Len(t, match, 2, "no CSRF token on %s", from)

	if form == nil {
		form = url.Values{}
	}
	form.Set("gorilla.csrf.Token", match[1])

	resp, err := s.client.PostForm(s.url+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.get(t, "/static/keydesk.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")

	resp, _ = srv.get(t, "/static/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKiosk_ArithmeticFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.get(t, "/get-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="name"`)

	// too short stays on the identity step with a message
	_, body = srv.post(t, "/get-key", "/get-key/identity", url.Values{"name": {"Al"}})
	assert.Contains(t, body, "Please enter at least 3 characters")

	_, body = srv.post(t, "/get-key", "/get-key/identity", url.Values{"name": {"Ann"}})
	match := problemPattern.FindStringSubmatch(body)
	require.Len(t, match, 3)
	a, _ := strconv.Atoi(match[1])
	b, _ := strconv.Atoi(match[2])

	_, body = srv.post(t, "/get-key", "/get-key/answer", url.Values{"answer": {strconv.Itoa(a + b + 1)}})
	assert.Contains(t, body, "Incorrect answer, try again")
	assert.Contains(t, body, match[0])

	_, body = srv.post(t, "/get-key", "/get-key/answer", url.Values{"answer": {strconv.Itoa(a + b)}})
	assert.Contains(t, body, "TRIAL-AAAA-BBBB-CCCC")
	assert.True(t, srv.api.called("POST /api/public-generate"))

	resp, body = srv.get(t, "/get-key/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment; filename=\"license-key-")
	assert.Contains(t, body, "TRIAL-AAAA-BBBB-CCCC")
	assert.Contains(t, body, srv.url)

	// starting over lands on the blocked page for the rest of the day
	_, body = srv.post(t, "/get-key", "/get-key/reset", nil)
	timer := timerPattern.FindStringSubmatch(body)
	require.Len(t, timer, 2)
	assert.True(t, strings.HasPrefix(timer[1], "23:") || timer[1] == "24:00:00", timer[1])
	assert.Contains(t, body, `http-equiv="refresh" content="1"`)
	assert.NotContains(t, body, `name="name"`)
}

func TestKiosk_DownloadWithoutKey(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.get(t, "/get-key/download")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "No key data found")
}

func TestKiosk_TimedWaitFlow(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	srv := newTestServer(t, func(deps *Dependencies) {
		deps.Kiosk = func(store kiosk.Store) (*kiosk.Service, error) {
			return kiosk.NewService(store, deps.API, domain.KioskConfig{Challenge: "wait"}, kiosk.WithClock(clock))
		}
	})

	resp, body := srv.post(t, "/get-key", "/get-key/identity", url.Values{"name": {"Ann"}})
	assert.True(t, strings.HasSuffix(resp.Request.URL.Path, "/get-key/wait"))
	assert.Contains(t, body, `style="width: 0%"`)
	assert.Contains(t, body, `http-equiv="refresh" content="1"`)

	advance(4 * time.Second)
	_, body = srv.get(t, "/get-key/wait")
	assert.Contains(t, body, `style="width: 40%"`)
	assert.False(t, srv.api.called("POST /api/public-generate"))

	advance(6 * time.Second)
	resp, body = srv.get(t, "/get-key/wait")
	assert.Equal(t, "/get-key", resp.Request.URL.Path)
	assert.Contains(t, body, "TRIAL-AAAA-BBBB-CCCC")
}

func TestCSRF_RejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)

	srv.get(t, "/get-key")
	resp, err := srv.client.PostForm(srv.url+"/get-key/identity", url.Values{"name": {"Ann"}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdmin_LoginListAndMutate(t *testing.T) {
	srv := newTestServer(t)

	_, body := srv.get(t, "/admin")
	assert.Contains(t, body, "Admin Login")

	_, body = srv.post(t, "/admin", "/admin/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	assert.Contains(t, body, "Invalid credentials")

	_, body = srv.post(t, "/admin", "/admin/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, "Globex")
	assert.Contains(t, body, "1/3")

	_, body = srv.get(t, "/admin?q=acme")
	assert.Contains(t, body, "Acme Corp")
	assert.NotContains(t, body, "Globex")

	_, body = srv.get(t, "/admin?q=nothing-matches")
	assert.Contains(t, body, admin.EmptyMessage)

	_, body = srv.get(t, "/admin/keys/h1/toggle")
	assert.Contains(t, body, admin.ToggleConfirmation)
	assert.False(t, srv.api.called("POST /api/keys/h1/toggle"))

	srv.post(t, "/admin/keys/h1/toggle", "/admin/keys/h1/toggle", nil)
	assert.True(t, srv.api.called("POST /api/keys/h1/toggle"))

	srv.post(t, "/admin/keys/h2/delete", "/admin/keys/h2/delete", nil)
	assert.True(t, srv.api.called("DELETE /api/keys/h2"))

	_, body = srv.post(t, "/admin", "/admin/keys", url.Values{
		"customer_name":   {"Initech"},
		"key_type":        {"enterprise"},
		"duration_days":   {"365"},
		"max_activations": {"5"},
	})
	assert.Contains(t, body, "ENTR-1111-2222-3333")
	assert.Contains(t, body, "Customer: Initech | Type: ENTERPRISE | Expires: 01 March 2026")

	_, body = srv.post(t, "/admin", "/admin/keys", url.Values{
		"customer_name":   {"Initech"},
		"key_type":        {"STANDARD"},
		"duration_days":   {"0"},
		"max_activations": {"1"},
	})
	assert.Contains(t, body, "Error: invalid duration (days)")

	_, body = srv.post(t, "/admin", "/admin/logout", nil)
	assert.Contains(t, body, "Admin Login")
	assert.True(t, srv.api.called("POST /api/logout"))
}

func TestAdmin_ExpiredUpstreamSession(t *testing.T) {
	srv := newTestServer(t)

	_, body := srv.post(t, "/admin", "/admin/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	require.Contains(t, body, "Acme Corp")

	srv.api.expireAll()

	_, body = srv.post(t, "/admin/keys/h1/toggle", "/admin/keys/h1/toggle", nil)
	assert.Contains(t, body, "Admin Login")
	assert.Contains(t, body, "Admin Login")
	assert.Contains(t, body, "Session expired, please log in again")
}

func TestAdmin_MutationsRequireSession(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.get(t, "/admin/keys/h1/delete")
	assert.Equal(t, "/admin", resp.Request.URL.Path)
	assert.Contains(t, body, "Admin Login")

	srv.post(t, "/admin", "/admin/keys/h1/delete", nil)
	assert.False(t, srv.api.called("DELETE /api/keys/h1"))
}

func TestVerify(t *testing.T) {
	srv := newTestServer(t)

	_, body := srv.post(t, "/verify", "/verify", url.Values{"license_key": {"GOOD-KEY"}})
	assert.Contains(t, body, "Valid License Key")
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "1/3")

	_, body = srv.post(t, "/verify", "/verify", url.Values{"license_key": {"NOPE"}})
	assert.Contains(t, body, "Invalid License Key")
	assert.Contains(t, body, "License key not found")

	_, body = srv.post(t, "/verify", "/verify", url.Values{"license_key": {"  "}})
	assert.Contains(t, body, "License key is required")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	srv.post(t, "/verify", "/verify", url.Values{"license_key": {"GOOD-KEY"}})

	resp, body := srv.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `keydesk_api_requests_total{endpoint="verify",outcome="success"} 1`)
	assert.Contains(t, body, "keydesk_api_up 1")
	assert.Contains(t, body, `keydesk_build_info{version="test"} 1`)
}
