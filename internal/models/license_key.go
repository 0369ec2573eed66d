// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

// Key status values reported by the license API
const (
	KeyStatusActive   = "active"
	KeyStatusInactive = "inactive"
)

// Key types understood by the license API
const (
	KeyTypeStandard   = "STANDARD"
	KeyTypePremium    = "PREMIUM"
	KeyTypeEnterprise = "ENTERPRISE"
	KeyTypeTrial      = "TRIAL"
)

// LicenseKey is a key record as listed by the license API. The Key field is
// masked by the API; KeyHash addresses the record for toggle and delete.
type LicenseKey struct {
	CustomerName    string    `json:"customer_name" yaml:"customer_name"`
	Key             string    `json:"key" yaml:"key"`
	KeyType         string    `json:"key_type" yaml:"key_type"`
	CreatedAt       Timestamp `json:"created_at" yaml:"created_at"`
	ExpiresAt       Timestamp `json:"expires_at" yaml:"expires_at"`
	DurationDays    int       `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
	Activations     int       `json:"activations" yaml:"activations"`
	MaxActivations  int       `json:"max_activations" yaml:"max_activations"`
	Status          string    `json:"status" yaml:"status"`
	KeyHash         string    `json:"key_hash" yaml:"key_hash"`
	PublicGenerated bool      `json:"public_generated,omitempty" yaml:"public_generated,omitempty"`
}

// IsActive reports whether the API marks the key active.
func (k *LicenseKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// IssuedKey is the payload returned by a successful issuance. It is also
// what gets persisted as the last generated key.
type IssuedKey struct {
	Success    bool      `json:"success"`
	LicenseKey string    `json:"license_key"`
	CreatedAt  Timestamp `json:"created_at"`
	ExpiresAt  Timestamp `json:"expires_at"`
	Message    string    `json:"message,omitempty"`
}
