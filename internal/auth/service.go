// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package auth keeps the web console's browser-side state in encrypted
// cookie sessions: the kiosk's persisted state, the trial wizard and the
// upstream admin session.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/models"
)

const (
	KioskSessionName  = "keydesk_kiosk"
	WizardSessionName = "keydesk_wizard"
	AdminSessionName  = "keydesk_admin"
)

const (
	kioskMaxAge  = 86400 * 365
	wizardMaxAge = 3600
	adminMaxAge  = 86400 * 7
)

type Service struct {
	store *sessions.CookieStore
}

// NewService signs cookies with hashKey and encrypts them with blockKey
func NewService(hashKey, blockKey []byte) *Service {
	store := sessions.NewCookieStore(hashKey, blockKey)
	return &Service{
		store: store,
	}
}

func (s *Service) GetSessionStore() *sessions.CookieStore {
	return s.store
}

func (s *Service) session(r *http.Request, name string, maxAge int) *sessions.Session {
	// a cookie from an older key fails to decode; start fresh
	session, err := s.store.Get(r, name)
	if err != nil {
		log.Debug().Err(err).Str("session", name).Msg("Discarding undecodable session cookie")
	}

	session.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	// If behind reverse proxy with HTTPS, upgrade security
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		session.Options.Secure = true
	}

	return session
}

// KioskState is the persisted client store of one browser
type KioskState struct {
	session *sessions.Session
}

func (s *Service) KioskState(r *http.Request) *KioskState {
	return &KioskState{session: s.session(r, KioskSessionName, kioskMaxAge)}
}

func (k *KioskState) Get(_ context.Context, key string) (string, error) {
	value, ok := k.session.Values[key].(string)
	if !ok {
		return "", models.ErrStateNotFound
	}
	return value, nil
}

func (k *KioskState) Set(_ context.Context, key, value string) error {
	k.session.Values[key] = value
	return nil
}

func (k *KioskState) Save(w http.ResponseWriter, r *http.Request) error {
	return k.session.Save(r, w)
}

const wizardKey = "wizard"

// Wizard loads the trial wizard, or nil when there is none
func (s *Service) Wizard(r *http.Request) *kiosk.Session {
	session := s.session(r, WizardSessionName, wizardMaxAge)

	raw, ok := session.Values[wizardKey].(string)
	if !ok {
		return nil
	}

	var wizard kiosk.Session
	if err := json.Unmarshal([]byte(raw), &wizard); err != nil {
		log.Debug().Err(err).Msg("Discarding unreadable wizard state")
		return nil
	}
	return &wizard
}

func (s *Service) SaveWizard(w http.ResponseWriter, r *http.Request, wizard *kiosk.Session) error {
	data, err := json.Marshal(wizard)
	if err != nil {
		return fmt.Errorf("failed to encode wizard: %w", err)
	}

	session := s.session(r, WizardSessionName, wizardMaxAge)
	session.Values[wizardKey] = string(data)
	return session.Save(r, w)
}

// AdminSession is the console's record of an upstream admin login
type AdminSession struct {
	ID       string
	Username string
	Cookies  []*http.Cookie
}

const (
	adminIDKey       = "sid"
	adminUsernameKey = "username"
	adminCookiesKey  = "api_cookies"
	adminFlashKey    = "_flash"
)

// Admin returns the admin session, or nil when nobody is logged in
func (s *Service) Admin(r *http.Request) *AdminSession {
	session := s.session(r, AdminSessionName, adminMaxAge)

	id, _ := session.Values[adminIDKey].(string)
	raw, _ := session.Values[adminCookiesKey].(string)
	if id == "" || raw == "" {
		return nil
	}

	cookies, err := DecodeCookies(raw)
	if err != nil {
		log.Debug().Err(err).Msg("Discarding unreadable admin session")
		return nil
	}

	username, _ := session.Values[adminUsernameKey].(string)
	return &AdminSession{ID: id, Username: username, Cookies: cookies}
}

func (s *Service) SaveAdmin(w http.ResponseWriter, r *http.Request, username string, cookies []*http.Cookie) error {
	raw, err := EncodeCookies(cookies)
	if err != nil {
		return err
	}

	session := s.session(r, AdminSessionName, adminMaxAge)
	session.Values[adminIDKey] = uuid.NewString()
	session.Values[adminUsernameKey] = username
	session.Values[adminCookiesKey] = raw
	return session.Save(r, w)
}

func (s *Service) ClearAdmin(w http.ResponseWriter, r *http.Request) error {
	session := s.session(r, AdminSessionName, adminMaxAge)
	delete(session.Values, adminIDKey)
	delete(session.Values, adminUsernameKey)
	delete(session.Values, adminCookiesKey)
	return session.Save(r, w)
}

// AddFlash queues a one-shot message for the next admin page
func (s *Service) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session := s.session(r, AdminSessionName, adminMaxAge)
	session.AddFlash(message, adminFlashKey+kind)
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("Failed to save flash message")
	}
}

// Flashes pops queued messages of kind. The caller must save the
// session afterwards, which SaveFlashes does.
func (s *Service) Flashes(r *http.Request, kind string) []string {
	session := s.session(r, AdminSessionName, adminMaxAge)
	var out []string
	for _, f := range session.Flashes(adminFlashKey + kind) {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Service) SaveFlashes(w http.ResponseWriter, r *http.Request) error {
	return s.session(r, AdminSessionName, adminMaxAge).Save(r, w)
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EncodeCookies serializes the name and value of each cookie
func EncodeCookies(cookies []*http.Cookie) (string, error) {
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode cookies: %w", err)
	}
	return string(data), nil
}

func DecodeCookies(raw string) ([]*http.Cookie, error) {
	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode cookies: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}
