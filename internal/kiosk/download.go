// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package kiosk

import (
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/keydesk/internal/models"
)

const (
	GeneratedLayout = "02 January 2006 15:04"
	DateLayout      = "02 January 2006"
)

const rule = "═══════════════════════════════════════"

// KeyFileName names the downloaded key summary after the current time
func KeyFileName(now time.Time) string {
	return fmt.Sprintf("license-key-%d.txt", now.UnixMilli())
}

// RenderKeyFile builds the plain-text key summary offered for download
func RenderKeyFile(issued *models.IssuedKey, origin string, now time.Time) string {
	var b strings.Builder

	section := func(title string) {
		b.WriteString(rule + "\n")
		b.WriteString(title + "\n")
		b.WriteString(rule + "\n")
	}

	section("    LICENSE KEY INFORMATION")
	b.WriteString("\n")
	fmt.Fprintf(&b, "License Key: %s\n\n", issued.LicenseKey)
	b.WriteString("Type: FREE TRIAL\n")
	b.WriteString("Status: ACTIVE\n")
	b.WriteString("Max Activations: 1 device\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(DateLayout))
	fmt.Fprintf(&b, "Expires: %s\n\n", formatDate(issued.ExpiresAt, DateLayout))

	section("IMPORTANT NOTES:")
	b.WriteString("- Keep this key secure and confidential\n")
	b.WriteString("- Valid for 7 days from generation date\n")
	b.WriteString("- Can be activated on 1 device only\n")
	fmt.Fprintf(&b, "- For support, visit: %s\n\n", origin)

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Generated from: %s\n", origin)
	b.WriteString(rule)

	return b.String()
}

func formatDate(ts models.Timestamp, layout string) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(layout)
}
