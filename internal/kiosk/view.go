// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package kiosk

import (
	"time"

	"github.com/autobrr/keydesk/internal/models"
)

// Result is the display form of an issued key
type Result struct {
	Key       string
	Generated string
	Expires   string
}

// ResultView formats an issued key. A missing creation time is shown as now.
func ResultView(issued *models.IssuedKey, now time.Time) Result {
	created := issued.CreatedAt.Time
	if created.IsZero() {
		created = now
	}

	return Result{
		Key:       issued.LicenseKey,
		Generated: created.Format(GeneratedLayout),
		Expires:   formatDate(issued.ExpiresAt, DateLayout),
	}
}
