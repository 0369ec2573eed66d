// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licenseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/models"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20
)

// Request outcomes reported to the Observer
const (
	OutcomeSuccess      = "success"
	OutcomeAPIError     = "api_error"
	OutcomeUnauthorized = "unauthorized"
	OutcomeTransport    = "transport_error"
)

var ErrUnauthorized = errors.New("not logged in to the license API")

// APIError is a failure reported by the API itself (success:false)
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("license API request failed with status %d", e.StatusCode)
}

// IsAPIError reports whether err carries an API-reported failure
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Observer receives one call per API request
type Observer interface {
	ObserveRequest(endpoint, outcome string, duration time.Duration)
}

// Client talks JSON over HTTP to the license API. Each client owns a cookie
// jar holding the API session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	observer   Observer
}

type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithObserver reports request outcomes to o
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid license API url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("license API url must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("license API url %q has no host", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cookies exports the API session cookies
func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// WithCookies returns a copy of the client whose jar holds only cookies
func (c *Client) WithCookies(cookies []*http.Cookie) *Client {
	jar, _ := cookiejar.New(nil)

	seeded := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		cp := *cookie
		if cp.Path == "" {
			cp.Path = "/"
		}
		seeded = append(seeded, &cp)
	}
	jar.SetCookies(c.baseURL, seeded)

	hc := *c.httpClient
	hc.Jar = jar

	return &Client{
		baseURL:    c.baseURL,
		httpClient: &hc,
		observer:   c.observer,
	}
}

// Login authenticates the admin session
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.do(ctx, "login", http.MethodPost, "/api/login", LoginRequest{
		Username: username,
		Password: password,
	}, nil)
	return err
}

// Logout ends the admin session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil)
	return err
}

// Generate creates a key as admin
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*models.IssuedKey, error) {
	var issued models.IssuedKey
	if _, err := c.do(ctx, "generate", http.MethodPost, "/api/generate", req, &issued); err != nil {
		return nil, err
	}

	log.Debug().
		Str("customer", req.CustomerName).
		Str("licenseKey", maskLicenseKey(issued.LicenseKey)).
		Msg("License key generated")

	return &issued, nil
}

// PublicGenerate requests a self-service trial key
func (c *Client) PublicGenerate(ctx context.Context, req PublicGenerateRequest) (*models.IssuedKey, error) {
	var issued models.IssuedKey
	if _, err := c.do(ctx, "public_generate", http.MethodPost, "/api/public-generate", req, &issued); err != nil {
		return nil, err
	}

	log.Debug().
		Str("licenseKey", maskLicenseKey(issued.LicenseKey)).
		Msg("Trial key issued")

	return &issued, nil
}

// ListKeys returns every key known to the API
func (c *Client) ListKeys(ctx context.Context) ([]models.LicenseKey, error) {
	var resp keysResponse
	if _, err := c.do(ctx, "list_keys", http.MethodGet, "/api/keys", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Keys == nil {
		resp.Keys = []models.LicenseKey{}
	}
	return resp.Keys, nil
}

// ToggleKey flips a key between active and inactive
func (c *Client) ToggleKey(ctx context.Context, keyHash string) (*ToggleResult, error) {
	var resp ToggleResult
	path := "/api/keys/" + url.PathEscape(keyHash) + "/toggle"
	if _, err := c.do(ctx, "toggle_key", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteKey removes a key
func (c *Client) DeleteKey(ctx context.Context, keyHash string) error {
	_, err := c.do(ctx, "delete_key", http.MethodDelete, "/api/keys/"+url.PathEscape(keyHash), nil, nil)
	return err
}

// Verify checks a key. An invalid key is not an error: inspect Valid.
func (c *Client) Verify(ctx context.Context, licenseKey string) (*VerifyResult, error) {
	var result VerifyResult
	if _, err := c.do(ctx, "verify", http.MethodPost, "/api/verify", map[string]string{
		"license_key": licenseKey,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Activate records one activation of a key
func (c *Client) Activate(ctx context.Context, licenseKey string) (*ActivateResult, error) {
	var result ActivateResult
	if _, err := c.do(ctx, "activate", http.MethodPost, "/api/activate", map[string]string{
		"license_key": licenseKey,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks that the API host answers. Any response below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/", nil)
	if err != nil {
		return errors.Wrap(err, "failed to build ping request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "license API unreachable")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("license API answered with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) (status int, err error) {
	start := time.Now()
	outcome := OutcomeTransport
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(endpoint, outcome, time.Since(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to encode %s request", endpoint)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to build %s request", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "%s request failed", endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, errors.Wrapf(err, "failed to read %s response", endpoint)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("License API returned a non-JSON body")
		return resp.StatusCode, errors.Errorf("unexpected response from license API (%s): status %d", endpoint, resp.StatusCode)
	}

	if env.Success == nil && env.Valid == nil {
		if resp.StatusCode == http.StatusUnauthorized {
			outcome = OutcomeUnauthorized
			return resp.StatusCode, ErrUnauthorized
		}
		if resp.StatusCode >= http.StatusBadRequest {
			outcome = OutcomeAPIError
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: firstNonEmpty(env.Message, env.Error)}
		}
	}

	if env.Success != nil && !*env.Success {
		outcome = OutcomeAPIError
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: firstNonEmpty(env.Message, env.Error)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "failed to decode %s response", endpoint)
		}
	}

	outcome = OutcomeSuccess
	return resp.StatusCode, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// maskLicenseKey masks a license key for logging (shows first 8 chars + ***)
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
