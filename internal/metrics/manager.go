// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/domain"
)

// Manager owns the registry and the counters fed by the API client and
// the kiosk
type Manager struct {
	registry        *prometheus.Registry
	statusCollector *StatusCollector

	apiRequests      *prometheus.CounterVec
	apiDuration      *prometheus.HistogramVec
	issuance         *prometheus.CounterVec
	challengeAttempt *prometheus.CounterVec
}

func NewManager(version string, kiosk domain.KioskConfig, prober Prober) *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		registry:        registry,
		statusCollector: NewStatusCollector(version, kiosk, prober),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keydesk_api_requests_total",
			Help: "License API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keydesk_api_request_duration_seconds",
			Help:    "License API request latency by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		issuance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keydesk_kiosk_issuance_total",
			Help: "Trial key requests by result (issued, failed, blocked)",
		}, []string{"result"}),
		challengeAttempt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keydesk_kiosk_challenge_attempts_total",
			Help: "Bot-deterrence challenge attempts by kind and result",
		}, []string{"kind", "result"}),
	}

	registry.MustRegister(
		m.statusCollector,
		m.apiRequests,
		m.apiDuration,
		m.issuance,
		m.challengeAttempt,
	)

	log.Info().Msg("Metrics manager initialized")

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) ObserveRequest(endpoint, outcome string, duration time.Duration) {
	m.apiRequests.WithLabelValues(endpoint, outcome).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Manager) RecordIssuance(result string) {
	m.issuance.WithLabelValues(result).Inc()
}

func (m *Manager) RecordChallengeAttempt(kind, result string) {
	m.challengeAttempt.WithLabelValues(kind, result).Inc()
}
