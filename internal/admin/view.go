// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package admin

import (
	"fmt"

	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/models"
)

const (
	EmptyMessage = "No license keys found"
	DateLayout   = "02 January 2006"
)

type Row struct {
	CustomerName string
	Key          string
	KeyType      string
	Created      string
	Expires      string
	Activations  string
	Status       string
	StatusClass  string
	ToggleLabel  string
	KeyHash      string
}

type Table struct {
	Rows         []Row
	Empty        bool
	EmptyMessage string
}

func BuildTable(keys []models.LicenseKey) Table {
	if len(keys) == 0 {
		return Table{Empty: true, EmptyMessage: EmptyMessage}
	}

	rows := make([]Row, 0, len(keys))
	for i := range keys {
		key := &keys[i]

		statusClass, toggle := "status-inactive", "Activate"
		if key.IsActive() {
			statusClass, toggle = "status-active", "Deactivate"
		}

		rows = append(rows, Row{
			CustomerName: key.CustomerName,
			Key:          key.Key,
			KeyType:      key.KeyType,
			Created:      formatDate(key.CreatedAt),
			Expires:      formatDate(key.ExpiresAt),
			Activations:  fmt.Sprintf("%d/%d", key.Activations, key.MaxActivations),
			Status:       key.Status,
			StatusClass:  statusClass,
			ToggleLabel:  toggle,
			KeyHash:      key.KeyHash,
		})
	}

	return Table{Rows: rows}
}

// VerifyView is the rendered verification verdict
type VerifyView struct {
	Valid        bool
	Title        string
	CustomerName string
	KeyType      string
	Expires      string
	Activations  string
	Message      string
}

func BuildVerifyView(result *licenseapi.VerifyResult) VerifyView {
	if result == nil || !result.Valid {
		view := VerifyView{Title: "❌ Invalid License Key"}
		if result != nil {
			view.Message = result.Message
		}
		return view
	}

	return VerifyView{
		Valid:        true,
		Title:        "✅ Valid License Key",
		CustomerName: result.CustomerName,
		KeyType:      result.KeyType,
		Expires:      formatDate(result.ExpiresAt),
		Activations:  fmt.Sprintf("%d/%d", result.Activations, result.MaxActivations),
	}
}

// ErrorView renders a failed verification request
func ErrorView(err error) VerifyView {
	return VerifyView{Title: "❌ Error", Message: err.Error()}
}

func formatDate(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(DateLayout)
}
