// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/web"
)

type VerifyHandler struct {
	client *licenseapi.Client
	cache  *ristretto.Cache
	web    *web.Handler
}

func NewVerifyHandler(client *licenseapi.Client, cache *ristretto.Cache, webHandler *web.Handler) *VerifyHandler {
	return &VerifyHandler{
		client: client,
		cache:  cache,
		web:    webHandler,
	}
}

type verifyPage struct {
	Key  string
	View *admin.VerifyView
}

func (h *VerifyHandler) Show(w http.ResponseWriter, r *http.Request) {
	h.web.Render(w, r, http.StatusOK, "verify.html", "Verify", 0, verifyPage{})
}

func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	// verification is public; no upstream session is attached
	svc, err := admin.NewService(h.client.WithCookies(nil), admin.WithCache(h.cache, "public"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create admin service")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	page := verifyPage{Key: r.PostFormValue("license_key")}

	result, err := svc.Verify(r.Context(), page.Key)
	var view admin.VerifyView
	if err != nil {
		log.Warn().Err(err).Msg("License verification failed")
		view = admin.ErrorView(err)
	} else {
		view = admin.BuildVerifyView(result)
	}
	page.View = &view

	h.web.Render(w, r, http.StatusOK, "verify.html", "Verify", 0, page)
}
