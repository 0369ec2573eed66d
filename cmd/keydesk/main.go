// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/api"
	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/config"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/metrics"
	"github.com/autobrr/keydesk/internal/web"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "keydesk",
		Short: "License key console and trial-key kiosk",
		Long: `keydesk - An admin console for a license-key API together with a
self-service kiosk that hands out rate-limited trial keys, in the browser
or the terminal.`,
	}

	// Initialize logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunLoginCommand())
	rootCmd.AddCommand(RunLogoutCommand())
	rootCmd.AddCommand(RunKeysCommand())
	rootCmd.AddCommand(RunVerifyCommand())
	rootCmd.AddCommand(RunActivateCommand())
	rootCmd.AddCommand(RunTrialCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the web console",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/keydesk/ or %APPDATA%\\keydesk\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the client state database (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		app := NewApplication(Version, configDir, dataDir, logPath, pprofFlag)
		return app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of keydesk",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/keydesk/config.toml
- Windows: %APPDATA%\keydesk\config.toml

You can specify either a directory path or a direct file path:
- Directory: keydesk generate-config --config-dir /path/to/config/
- File: keydesk generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

type Application struct {
	version   string
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(version, configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		version:   version,
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

// newHandler wires the console for cfg. It is split from runServer so
// the whole stack can be exercised without binding a port.
func (app *Application) newHandler(cfg *config.AppConfig) (http.Handler, error) {
	keys, err := cfg.GetSessionKeys()
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Config.APITimeout) * time.Second

	var (
		metricsManager *metrics.Manager
		clientOpts     = []licenseapi.Option{licenseapi.WithTimeout(timeout)}
	)
	if cfg.Config.MetricsEnabled {
		prober, err := licenseapi.NewClient(cfg.Config.APIURL, licenseapi.WithTimeout(5*time.Second))
		if err != nil {
			return nil, err
		}
		metricsManager = metrics.NewManager(app.version, cfg.Config.Kiosk, prober)
		clientOpts = append(clientOpts, licenseapi.WithObserver(metricsManager))
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	client, err := licenseapi.NewClient(cfg.Config.APIURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	webHandler, err := web.NewHandler(app.version, cfg.Config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize web handler: %w", err)
	}

	cache, err := admin.NewCache()
	if err != nil {
		return nil, err
	}

	router, err := api.NewRouter(&api.Dependencies{
		Config:         cfg,
		API:            client,
		Sessions:       auth.NewService(keys.HashKey, keys.BlockKey),
		AdminCache:     cache,
		MetricsManager: metricsManager,
		WebHandler:     webHandler,
	})
	if err != nil {
		return nil, err
	}

	// If baseURL is configured, mount the entire app under that path
	if cfg.Config.BaseURL == "" || cfg.Config.BaseURL == "/" {
		return router, nil
	}

	parentRouter := chi.NewRouter()
	mountPath := strings.TrimSuffix(cfg.Config.BaseURL, "/")
	parentRouter.Mount(mountPath, router)
	parentRouter.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, mountPath+"/", http.StatusMovedPermanently)
	})

	return parentRouter, nil
}

func (app *Application) runServer() error {
	log.Info().Str("version", app.version).Msg("Starting keydesk")

	cfg, err := config.New(app.configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()
	cfg.Watch()

	log.Info().Str("apiUrl", cfg.Config.APIURL).Msg("Using license API")

	handler, err := app.newHandler(cfg)
	if err != nil {
		return err
	}

	// Create HTTP server with configurable timeouts
	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	// Use defaults if not configured
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 120 * time.Second
	}
	if idleTimeout == 0 {
		idleTimeout = 180 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")
		if cfg.Config.BaseURL != "" {
			log.Info().Str("baseURL", cfg.Config.BaseURL).Msg("Serving under base URL")
		}

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start profiling server if enabled
	if app.pprofFlag {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
