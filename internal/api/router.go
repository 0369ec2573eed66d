// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"fmt"
	"net/http"

	"github.com/dgraph-io/ristretto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/api/handlers"
	apimiddleware "github.com/autobrr/keydesk/internal/api/middleware"
	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/config"
	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/metrics"
	"github.com/autobrr/keydesk/internal/web"
)

// Dependencies holds all the dependencies needed for the router
type Dependencies struct {
	Config         *config.AppConfig
	API            *licenseapi.Client
	Sessions       *auth.Service
	AdminCache     *ristretto.Cache
	MetricsManager *metrics.Manager
	WebHandler     *web.Handler
	// Kiosk overrides how a kiosk is bound to a browser's state
	Kiosk handlers.KioskFactory
}

func (d *Dependencies) kioskFactory() handlers.KioskFactory {
	if d.Kiosk != nil {
		return d.Kiosk
	}

	var opts []kiosk.Option
	if d.MetricsManager != nil {
		opts = append(opts, kiosk.WithRecorder(d.MetricsManager))
	}

	cfg := d.Config.Config.Kiosk
	return func(store kiosk.Store) (*kiosk.Service, error) {
		return kiosk.NewService(store, d.API, cfg, opts...)
	}
}

// NewRouter creates and configures the web console router
func NewRouter(deps *Dependencies) (*chi.Mux, error) {
	keys, err := deps.Config.GetSessionKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}

	if deps.AdminCache == nil {
		cache, err := admin.NewCache()
		if err != nil {
			return nil, err
		}
		deps.AdminCache = cache
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)

	if deps.MetricsManager != nil {
		r.Get("/metrics", handlers.NewMetricsHandler(deps.MetricsManager).ServeMetrics)
	}

	deps.WebHandler.RegisterRoutes(r)

	kioskHandler := handlers.NewKioskHandler(deps.kioskFactory(), deps.Sessions, deps.WebHandler)
	adminHandler := handlers.NewAdminHandler(deps.API, deps.AdminCache, deps.Sessions, deps.WebHandler)
	verifyHandler := handlers.NewVerifyHandler(deps.API, deps.AdminCache, deps.WebHandler)

	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.PlaintextCSRF)
		r.Use(csrf.Protect(keys.CSRFKey,
			csrf.Path("/"),
			csrf.Secure(false),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
		))

		r.Get("/", deps.WebHandler.Index)

		r.Route("/get-key", func(r chi.Router) {
			r.Get("/", kioskHandler.Show)
			r.Post("/identity", kioskHandler.Identity)
			r.Post("/answer", kioskHandler.Answer)
			r.Get("/wait", kioskHandler.Wait)
			r.Post("/reset", kioskHandler.Reset)
			r.Get("/download", kioskHandler.Download)
		})

		r.Get("/verify", verifyHandler.Show)
		r.Post("/verify", verifyHandler.Verify)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", adminHandler.Index)
			r.Post("/login", adminHandler.Login)
			r.Post("/logout", adminHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.RequireAdmin(deps.Sessions, deps.WebHandler.URL("/admin")))

				r.Post("/keys", adminHandler.Generate)
				r.Route("/keys/{hash}", func(r chi.Router) {
					r.Get("/toggle", adminHandler.ConfirmToggle)
					r.Post("/toggle", adminHandler.Toggle)
					r.Get("/delete", adminHandler.ConfirmDelete)
					r.Post("/delete", adminHandler.Delete)
				})
			})
		})
	})

	return r, nil
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	log.Warn().
		Err(csrf.FailureReason(r)).
		Str("path", r.URL.Path).
		Msg("Rejected request with invalid CSRF token")
	http.Error(w, "Forbidden - invalid or missing CSRF token, reload the page and try again", http.StatusForbidden)
}
