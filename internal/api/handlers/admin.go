// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/web"
)

const (
	flashError = "error"
	flashKey   = "key"
	flashInfo  = "info"
)

const sessionExpiredMessage = "Session expired, please log in again"

type AdminHandler struct {
	client   *licenseapi.Client
	cache    *ristretto.Cache
	sessions *auth.Service
	web      *web.Handler
}

func NewAdminHandler(client *licenseapi.Client, cache *ristretto.Cache, sessions *auth.Service, webHandler *web.Handler) *AdminHandler {
	return &AdminHandler{
		client:   client,
		cache:    cache,
		sessions: sessions,
		web:      webHandler,
	}
}

type loginPage struct {
	Username string
	Message  string
}

type generatedKey struct {
	Key  string
	Info string
}

type adminPage struct {
	Username  string
	Query     string
	Errors    []string
	Generated *generatedKey
	Table     admin.Table
}

type confirmPage struct {
	Prompt      string
	KeyHash     string
	Action      string
	Button      string
	ButtonClass string
}

// service binds the admin operations to the logged-in session's
// upstream cookies. It returns nil when nobody is logged in.
func (h *AdminHandler) service(r *http.Request) (*admin.Service, *auth.AdminSession, error) {
	session := h.sessions.Admin(r)
	if session == nil {
		return nil, nil, nil
	}

	svc, err := admin.NewService(h.client.WithCookies(session.Cookies), admin.WithCache(h.cache, session.ID))
	if err != nil {
		return nil, nil, err
	}
	return svc, session, nil
}

// expired drops a session the license API no longer accepts
func (h *AdminHandler) expired(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearAdmin(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear admin session")
	}
	h.sessions.AddFlash(w, r, flashError, sessionExpiredMessage)
	h.web.Redirect(w, r, "/admin")
}

// Index renders the key list, or the login form when nobody is logged in
func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	svc, session, err := h.service(r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create admin service")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	errs := h.sessions.Flashes(r, flashError)

	if svc == nil {
		if err := h.sessions.SaveFlashes(w, r); err != nil {
			log.Error().Err(err).Msg("Failed to save flashes")
		}
		page := loginPage{}
		if len(errs) > 0 {
			page.Message = errs[0]
		}
		h.web.Render(w, r, http.StatusOK, "login.html", "Admin Login", 0, page)
		return
	}

	page := adminPage{
		Username: session.Username,
		Query:    r.URL.Query().Get("q"),
		Errors:   errs,
	}

	if keys := h.sessions.Flashes(r, flashKey); len(keys) > 0 {
		page.Generated = &generatedKey{Key: keys[0]}
		if info := h.sessions.Flashes(r, flashInfo); len(info) > 0 {
			page.Generated.Info = info[0]
		}
	}

	keys, err := svc.Search(r.Context(), page.Query)
	switch {
	case errors.Is(err, licenseapi.ErrUnauthorized):
		h.expired(w, r)
		return
	case err != nil:
		log.Warn().Err(err).Msg("Failed to load license keys")
		page.Table = admin.Table{Empty: true, EmptyMessage: "Error loading keys: " + err.Error()}
	default:
		page.Table = admin.BuildTable(keys)
	}

	if err := h.sessions.SaveFlashes(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to save flashes")
	}

	h.web.Render(w, r, http.StatusOK, "admin.html", "License Keys", 0, page)
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	username := r.PostFormValue("username")
	client := h.client.WithCookies(nil)

	svc, err := admin.NewService(client, admin.WithCache(h.cache, "login"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create admin service")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := svc.Login(r.Context(), username, r.PostFormValue("password")); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("Admin login failed")
		h.sessions.AddFlash(w, r, flashError, loginFailure(err))
		h.web.Redirect(w, r, "/admin")
		return
	}

	if err := h.sessions.SaveAdmin(w, r, username, client.Cookies()); err != nil {
		log.Error().Err(err).Msg("Failed to save admin session")
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	h.web.Redirect(w, r, "/admin")
}

func loginFailure(err error) string {
	if apiErr, ok := licenseapi.IsAPIError(err); ok {
		return apiErr.Error()
	}
	return "Login failed: " + err.Error()
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	svc, _, err := h.service(r)
	if err == nil && svc != nil {
		if err := svc.Logout(r.Context()); err != nil {
			log.Warn().Err(err).Msg("License API logout failed")
		}
	}

	if err := h.sessions.ClearAdmin(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear admin session")
	}
	h.web.Redirect(w, r, "/admin")
}

// Generate handles the key generation form
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	svc, _, err := h.service(r)
	if err != nil || svc == nil {
		h.web.Redirect(w, r, "/admin")
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	// unparsable numbers stay zero and fail validation
	days, _ := strconv.Atoi(r.PostFormValue("duration_days"))
	maxActivations, _ := strconv.Atoi(r.PostFormValue("max_activations"))

	form := admin.GenerateForm{
		CustomerName:   strings.TrimSpace(r.PostFormValue("customer_name")),
		KeyType:        strings.ToUpper(r.PostFormValue("key_type")),
		DurationDays:   days,
		MaxActivations: maxActivations,
	}

	issued, err := svc.Generate(r.Context(), form)
	switch {
	case errors.Is(err, licenseapi.ErrUnauthorized):
		h.expired(w, r)
		return
	case err != nil:
		h.sessions.AddFlash(w, r, flashError, "Error: "+err.Error())
	default:
		h.sessions.AddFlash(w, r, flashKey, issued.LicenseKey)
		h.sessions.AddFlash(w, r, flashInfo, fmt.Sprintf("Customer: %s | Type: %s | Expires: %s",
			form.CustomerName, form.KeyType, formatExpiry(issued.ExpiresAt.Time)))
	}

	h.web.Redirect(w, r, "/admin")
}

// ConfirmToggle asks before flipping a key's status
func (h *AdminHandler) ConfirmToggle(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	h.web.Render(w, r, http.StatusOK, "confirm.html", "Confirm", 0, confirmPage{
		Prompt:      admin.ToggleConfirmation,
		KeyHash:     hash,
		Action:      h.web.URL("/admin/keys/" + hash + "/toggle"),
		Button:      "Toggle status",
		ButtonClass: "btn-warning",
	})
}

// ConfirmDelete asks before removing a key
func (h *AdminHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	h.web.Render(w, r, http.StatusOK, "confirm.html", "Confirm", 0, confirmPage{
		Prompt:      admin.DeleteConfirmation,
		KeyHash:     hash,
		Action:      h.web.URL("/admin/keys/" + hash + "/delete"),
		Button:      "Delete",
		ButtonClass: "btn-danger",
	})
}

// Toggle runs a confirmed status flip
func (h *AdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc *admin.Service, hash string) error {
		_, err := svc.Toggle(r.Context(), hash, admin.Confirmed)
		return err
	})
}

// Delete runs a confirmed removal
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc *admin.Service, hash string) error {
		_, err := svc.Delete(r.Context(), hash, admin.Confirmed)
		return err
	})
}

func (h *AdminHandler) mutate(w http.ResponseWriter, r *http.Request, do func(svc *admin.Service, hash string) error) {
	svc, _, err := h.service(r)
	if err != nil || svc == nil {
		h.web.Redirect(w, r, "/admin")
		return
	}

	err = do(svc, chi.URLParam(r, "hash"))
	switch {
	case errors.Is(err, licenseapi.ErrUnauthorized):
		h.expired(w, r)
		return
	case err != nil:
		h.sessions.AddFlash(w, r, flashError, "Error: "+err.Error())
	}

	h.web.Redirect(w, r, "/admin")
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(admin.DateLayout)
}
