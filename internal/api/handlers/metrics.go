// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/metrics"
)

type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler serves the manager's registry. A failing collector
// (an unreachable license API) must not take the whole scrape down.
func NewMetricsHandler(manager *metrics.Manager) *MetricsHandler {
	registry := manager.GetRegistry()
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          registry,
	})

	return &MetricsHandler{
		handler: handler,
	}
}

func (h *MetricsHandler) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	log.Trace().Str("remote_addr", r.RemoteAddr).Msg("Serving Prometheus metrics")
	h.handler.ServeHTTP(w, r)
}
