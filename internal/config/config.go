// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/crypto/hkdf"

	"github.com/autobrr/keydesk/internal/domain"
)

const (
	envPrefix      = "KEYDESK__"
	configFileName = "config.toml"
	databaseName   = "keydesk.db"
	appDirName     = "keydesk"
)

// AppConfig wraps the loaded configuration and the viper instance backing it
type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper

	path    string
	mu      sync.Mutex
	logFile *os.File
}

// New loads configuration from configDir, which may be a directory or a
// direct path to a .toml file. A default file is written when none exists.
func New(configDir string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()

	c.path = c.resolveConfigPath(configDir)
	if err := WriteDefaultConfig(c.path); err != nil {
		return nil, fmt.Errorf("failed to write default config: %w", err)
	}

	c.viper.SetConfigFile(c.path)
	c.viper.SetConfigType("toml")

	if err := c.bindEnv(); err != nil {
		return nil, err
	}

	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", c.path, err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if c.Config.SessionSecret == "" {
		secret, err := generateSecureToken(32)
		if err != nil {
			return nil, err
		}
		log.Warn().Msg("No sessionSecret configured, using an ephemeral one; sessions will not survive restarts")
		c.Config.SessionSecret = secret
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7474)
	c.viper.SetDefault("baseUrl", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("apiUrl", "http://localhost:5000")
	c.viper.SetDefault("apiTimeout", 30)
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("kiosk.challenge", "math")
	c.viper.SetDefault("kiosk.waitSeconds", 10)
	c.viper.SetDefault("kiosk.cooldownHours", 24)
	c.viper.SetDefault("kiosk.minNameLength", 3)
	c.viper.SetDefault("kiosk.keyType", "TRIAL")
	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
}

// bindEnv maps every known key to KEYDESK__UPPER_SNAKE, nested keys joined
// with a double underscore (kiosk.waitSeconds -> KEYDESK__KIOSK__WAIT_SECONDS)
func (c *AppConfig) bindEnv() error {
	for _, key := range c.viper.AllKeys() {
		if err := c.viper.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	c.viper.BindEnv("sessionSecret", envName("sessionSecret"))
	return nil
}

// viper lower-cases keys, so the camel-case boundaries come from the known
// key list below
var camelKeys = map[string]string{
	"baseurl":        "baseUrl",
	"sessionsecret":  "sessionSecret",
	"loglevel":       "logLevel",
	"logpath":        "logPath",
	"datadir":        "dataDir",
	"apiurl":         "apiUrl",
	"apitimeout":     "apiTimeout",
	"metricsenabled": "metricsEnabled",
	"waitseconds":    "waitSeconds",
	"cooldownhours":  "cooldownHours",
	"minnamelength":  "minNameLength",
	"keytype":        "keyType",
	"httptimeouts":   "httpTimeouts",
	"readtimeout":    "readTimeout",
	"writetimeout":   "writeTimeout",
	"idletimeout":    "idleTimeout",
}

func envName(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if camel, ok := camelKeys[strings.ToLower(part)]; ok {
			part = camel
		}
		parts[i] = toUpperSnake(part)
	}
	return envPrefix + strings.Join(parts, "__")
}

func toUpperSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// resolveConfigPath accepts a .toml file, an existing non-directory file, or
// a directory that will hold config.toml
func (c *AppConfig) resolveConfigPath(configDir string) string {
	if configDir == "" {
		return filepath.Join(GetDefaultConfigDir(), configFileName)
	}

	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}

	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}

	return filepath.Join(configDir, configFileName)
}

// Path returns the resolved configuration file path
func (c *AppConfig) Path() string {
	return c.path
}

// SetDataDir overrides the data directory
func (c *AppConfig) SetDataDir(dir string) {
	c.Config.DataDir = dir
}

// GetDatabasePath returns the CLI state database path: inside dataDir when
// set, otherwise next to the config file
func (c *AppConfig) GetDatabasePath() string {
	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, databaseName)
	}
	return filepath.Join(filepath.Dir(c.path), databaseName)
}

// ApplyLogConfig sets the global log level and output
func (c *AppConfig) ApplyLogConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()

	zerolog.SetGlobalLevel(parseLogLevel(c.Config.LogLevel))

	if c.Config.LogPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.Config.LogPath), 0755); err != nil {
		log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to create log directory")
		return
	}

	file, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file")
		return
	}

	if c.logFile != nil {
		c.logFile.Close()
	}
	c.logFile = file
	log.Logger = zerolog.New(file).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Watch re-applies the log level whenever the config file changes on disk
func (c *AppConfig) Watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		level := c.viper.GetString("logLevel")

		c.mu.Lock()
		changed := !strings.EqualFold(level, c.Config.LogLevel)
		c.Config.LogLevel = level
		c.mu.Unlock()

		if changed {
			zerolog.SetGlobalLevel(parseLogLevel(level))
			log.Info().Str("logLevel", level).Msg("Config reloaded")
		}
	})
	c.viper.WatchConfig()
}

// SessionKeys are the web console secrets derived from sessionSecret
type SessionKeys struct {
	HashKey  []byte
	BlockKey []byte
	CSRFKey  []byte
}

// GetSessionKeys derives cookie signing, cookie encryption and CSRF keys
// from the configured session secret with HKDF-SHA256
func (c *AppConfig) GetSessionKeys() (SessionKeys, error) {
	return deriveSessionKeys([]byte(c.Config.SessionSecret))
}

func deriveSessionKeys(secret []byte) (SessionKeys, error) {
	derive := func(info string, size int) ([]byte, error) {
		key := make([]byte, size)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
			return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
		}
		return key, nil
	}

	var (
		keys SessionKeys
		err  error
	)
	if keys.HashKey, err = derive("keydesk cookie hash", 64); err != nil {
		return SessionKeys{}, err
	}
	if keys.BlockKey, err = derive("keydesk cookie block", 32); err != nil {
		return SessionKeys{}, err
	}
	if keys.CSRFKey, err = derive("keydesk csrf", 32); err != nil {
		return SessionKeys{}, err
	}
	return keys, nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	return defaultConfigDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func defaultConfigDir(goos string, getenv func(string) string, home func() (string, error)) string {
	if goos == "windows" {
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
	}

	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" && goos != "windows" {
		return filepath.Join(xdg, appDirName)
	}

	dir, err := home()
	if err != nil || dir == "" {
		return appDirName
	}
	return filepath.Join(dir, ".config", appDirName)
}

var configTemplate = template.Must(template.New("config").Parse(`# config.toml - keydesk configuration

# Web console listen address
host = "{{ .Host }}"
port = {{ .Port }}

# Serve the console under a sub path, e.g. "/keydesk/"
#baseUrl = ""

# Secret used to derive cookie and CSRF keys. Keep it private.
sessionSecret = "{{ .SessionSecret }}"

# TRACE, DEBUG, INFO, WARN, ERROR
logLevel = "INFO"

# Log to a file instead of stderr
#logPath = ""

# Directory for the local state database (defaults to next to this file)
#dataDir = ""

# License API base URL and request timeout in seconds
apiUrl = "{{ .APIURL }}"
apiTimeout = 30

# Expose Prometheus metrics on /metrics
metricsEnabled = false

[kiosk]
# Bot-deterrence challenge: "math" or "wait"
challenge = "math"
waitSeconds = 10
cooldownHours = 24
minNameLength = 3
keyType = "TRIAL"

[httpTimeouts]
readTimeout = 60
writeTimeout = 120
idleTimeout = 180
`))

// WriteDefaultConfig writes a default config file to configPath. An existing
// file is never overwritten.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateSecureToken(32)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, domain.Config{
		Host:          "localhost",
		Port:          7474,
		SessionSecret: secret,
		APIURL:        "http://localhost:5000",
	}); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", configPath).Msg("Wrote default config")
	return nil
}
