// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/domain"
)

// Prober checks whether the license API answers
type Prober interface {
	Ping(ctx context.Context) error
}

// StatusCollector reports build info, kiosk settings and license API
// reachability at scrape time
type StatusCollector struct {
	version string
	kiosk   domain.KioskConfig
	prober  Prober

	buildInfoDesc   *prometheus.Desc
	cooldownDesc    *prometheus.Desc
	waitDesc        *prometheus.Desc
	apiUpDesc       *prometheus.Desc
	apiProbeLatency *prometheus.Desc
}

func NewStatusCollector(version string, kiosk domain.KioskConfig, prober Prober) *StatusCollector {
	return &StatusCollector{
		version: version,
		kiosk:   kiosk,
		prober:  prober,

		buildInfoDesc: prometheus.NewDesc(
			"keydesk_build_info",
			"Build information, value is always 1",
			[]string{"version"},
			nil,
		),
		cooldownDesc: prometheus.NewDesc(
			"keydesk_kiosk_cooldown_seconds",
			"Length of the client-side trial rate-limit window",
			nil,
			nil,
		),
		waitDesc: prometheus.NewDesc(
			"keydesk_kiosk_wait_seconds",
			"Length of the timed-wait challenge",
			nil,
			nil,
		),
		apiUpDesc: prometheus.NewDesc(
			"keydesk_api_up",
			"Whether the license API answered the last scrape probe (1=up, 0=down)",
			nil,
			nil,
		),
		apiProbeLatency: prometheus.NewDesc(
			"keydesk_api_probe_duration_seconds",
			"Duration of the last license API probe",
			nil,
			nil,
		),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buildInfoDesc
	ch <- c.cooldownDesc
	ch <- c.waitDesc
	ch <- c.apiUpDesc
	ch <- c.apiProbeLatency
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.buildInfoDesc, prometheus.GaugeValue, 1, c.version)
	ch <- prometheus.MustNewConstMetric(c.cooldownDesc, prometheus.GaugeValue, float64(c.kiosk.CooldownHours)*3600)
	ch <- prometheus.MustNewConstMetric(c.waitDesc, prometheus.GaugeValue, float64(c.kiosk.WaitSeconds))

	if c.prober == nil {
		log.Debug().Msg("No license API prober configured, skipping reachability metrics")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := c.prober.Ping(ctx)
	elapsed := time.Since(start)

	up := 1.0
	if err != nil {
		up = 0
		log.Debug().Err(err).Msg("License API probe failed")
	}

	ch <- prometheus.MustNewConstMetric(c.apiUpDesc, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(c.apiProbeLatency, prometheus.GaugeValue, elapsed.Seconds())
}
