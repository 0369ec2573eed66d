// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host           string       `toml:"host" mapstructure:"host"`
	Port           int          `toml:"port" mapstructure:"port"`
	BaseURL        string       `toml:"baseUrl" mapstructure:"baseUrl"`
	SessionSecret  string       `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel       string       `toml:"logLevel" mapstructure:"logLevel"`
	LogPath        string       `toml:"logPath" mapstructure:"logPath"`
	DataDir        string       `toml:"dataDir" mapstructure:"dataDir"`
	APIURL         string       `toml:"apiUrl" mapstructure:"apiUrl"`
	APITimeout     int          `toml:"apiTimeout" mapstructure:"apiTimeout"` // seconds
	MetricsEnabled bool         `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	Kiosk          KioskConfig  `toml:"kiosk" mapstructure:"kiosk"`
	HTTPTimeouts   HTTPTimeouts `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
}

// KioskConfig tunes the self-service trial flow
type KioskConfig struct {
	Challenge     string `toml:"challenge" mapstructure:"challenge"` // math or wait
	WaitSeconds   int    `toml:"waitSeconds" mapstructure:"waitSeconds"`
	CooldownHours int    `toml:"cooldownHours" mapstructure:"cooldownHours"`
	MinNameLength int    `toml:"minNameLength" mapstructure:"minNameLength"`
	KeyType       string `toml:"keyType" mapstructure:"keyType"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}
