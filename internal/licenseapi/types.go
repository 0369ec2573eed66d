// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licenseapi

import (
	"github.com/autobrr/keydesk/internal/models"
)

// LoginRequest is the admin credential payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GenerateRequest asks the API for a new key (admin only)
type GenerateRequest struct {
	CustomerName   string `json:"customer_name"`
	KeyType        string `json:"key_type"`
	DurationDays   int    `json:"duration_days"`
	MaxActivations int    `json:"max_activations"`
}

// PublicGenerateRequest asks the API for a self-service trial key
type PublicGenerateRequest struct {
	CustomerName string `json:"customer_name"`
	KeyType      string `json:"key_type"`
}

// VerifyResult is the verification verdict. Valid=false is a normal
// outcome and carries Message.
type VerifyResult struct {
	Valid          bool             `json:"valid"`
	Message        string           `json:"message,omitempty"`
	Expired        bool             `json:"expired,omitempty"`
	CustomerName   string           `json:"customer_name,omitempty"`
	KeyType        string           `json:"key_type,omitempty"`
	ExpiresAt      models.Timestamp `json:"expires_at,omitempty"`
	Activations    int              `json:"activations,omitempty"`
	MaxActivations int              `json:"max_activations,omitempty"`
}

// ActivateResult is returned by a successful activation
type ActivateResult struct {
	Message     string `json:"message"`
	Activations int    `json:"activations"`
}

// ToggleResult carries the status after a toggle
type ToggleResult struct {
	Status string `json:"status"`
}

// envelope covers every response shape the API returns
type envelope struct {
	Success *bool  `json:"success"`
	Valid   *bool  `json:"valid"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type keysResponse struct {
	Keys []models.LicenseKey `json:"keys"`
}
