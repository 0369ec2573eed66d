// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/config"
	"github.com/autobrr/keydesk/internal/database"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/models"
	"github.com/autobrr/keydesk/internal/terminal"
)

var errNotLoggedIn = errors.New("not logged in, run 'keydesk login' first")

// clientFlags locate the config and the client state database
type clientFlags struct {
	configDir string
	dataDir   string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")
}

// clientEnv is what a terminal command needs: config, the persisted
// client state and an API client
type clientEnv struct {
	cfg    *config.AppConfig
	db     *database.DB
	state  *models.ClientStateStore
	client *licenseapi.Client
}

func openClientEnv(f clientFlags) (*clientEnv, error) {
	cfg, err := config.New(f.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if f.dataDir != "" {
		cfg.SetDataDir(f.dataDir)
	}
	cfg.ApplyLogConfig()

	client, err := licenseapi.NewClient(cfg.Config.APIURL,
		licenseapi.WithTimeout(time.Duration(cfg.Config.APITimeout)*time.Second))
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &clientEnv{
		cfg:    cfg,
		db:     db,
		state:  models.NewClientStateStore(db.Conn()),
		client: client,
	}, nil
}

func (e *clientEnv) Close() error {
	return e.db.Close()
}

// adminService restores the stored admin session
func (e *clientEnv) adminService(ctx context.Context) (*admin.Service, error) {
	raw, err := e.state.Get(ctx, models.StateAdminSession)
	if err != nil {
		if errors.Is(err, models.ErrStateNotFound) {
			return nil, errNotLoggedIn
		}
		return nil, fmt.Errorf("failed to read admin session: %w", err)
	}

	cookies, err := auth.DecodeCookies(raw)
	if err != nil {
		return nil, err
	}

	return admin.NewService(e.client.WithCookies(cookies))
}

// adminError turns an expired upstream session into a login hint and
// forgets it
func (e *clientEnv) adminError(ctx context.Context, err error) error {
	if errors.Is(err, licenseapi.ErrUnauthorized) {
		if delErr := e.state.Delete(ctx, models.StateAdminSession); delErr != nil {
			return fmt.Errorf("failed to clear admin session: %w", delErr)
		}
		return errNotLoggedIn
	}
	return err
}

func newPrompter(cmd *cobra.Command) *terminal.Prompter {
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		return terminal.NewPrompter(f, cmd.OutOrStdout())
	}
	return terminal.NewPrompter(nil, cmd.OutOrStdout()).WithInput(cmd.InOrStdin())
}

func RunLoginCommand() *cobra.Command {
	var (
		flags              clientFlags
		username, password string
	)

	command := &cobra.Command{
		Use:   "login",
		Short: "Log in to the license API as an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			prompter := newPrompter(cmd)
			if username == "" {
				if username, err = prompter.Line("Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompter.Password("Password: "); err != nil {
					return err
				}
			}

			client := env.client.WithCookies(nil)
			svc, err := admin.NewService(client)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := svc.Login(ctx, username, password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			raw, err := auth.EncodeCookies(client.Cookies())
			if err != nil {
				return err
			}
			if err := env.state.Set(ctx, models.StateAdminSession, raw); err != nil {
				return fmt.Errorf("failed to store admin session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&username, "username", "", "admin username (will prompt if not provided)")
	command.Flags().StringVar(&password, "password", "", "admin password (will prompt if not provided)")

	return command
}

func RunLogoutCommand() *cobra.Command {
	var flags clientFlags

	command := &cobra.Command{
		Use:   "logout",
		Short: "End the stored admin session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			if svc, err := env.adminService(ctx); err == nil {
				// the local session goes either way
				_ = svc.Logout(ctx)
			}

			if err := env.state.Delete(ctx, models.StateAdminSession); err != nil {
				return fmt.Errorf("failed to clear admin session: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	flags.register(command)
	return command
}

func RunKeysCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "keys",
		Short: "Manage license keys",
	}

	command.AddCommand(runKeysGenerateCommand())
	command.AddCommand(runKeysListCommand())
	command.AddCommand(runKeysMutateCommand("toggle", "Toggle a key between active and inactive", func(ctx context.Context, svc *admin.Service, hash string, c admin.Confirmer) error {
		_, err := svc.Toggle(ctx, hash, c)
		return err
	}))
	command.AddCommand(runKeysMutateCommand("delete", "Delete a key", func(ctx context.Context, svc *admin.Service, hash string, c admin.Confirmer) error {
		_, err := svc.Delete(ctx, hash, c)
		return err
	}))

	return command
}

func runKeysGenerateCommand() *cobra.Command {
	var (
		flags clientFlags
		form  admin.GenerateForm
	)

	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate a license key",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			svc, err := env.adminService(ctx)
			if err != nil {
				return err
			}

			issued, err := svc.Generate(ctx, form)
			if err != nil {
				return env.adminError(ctx, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, issued.LicenseKey)
			fmt.Fprintf(out, "Customer: %s | Type: %s | Expires: %s\n",
				strings.TrimSpace(form.CustomerName), strings.ToUpper(form.KeyType), formatDate(issued.ExpiresAt))
			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&form.CustomerName, "customer", "", "customer name")
	command.Flags().StringVar(&form.KeyType, "type", models.KeyTypeStandard, "key type (STANDARD, PREMIUM, ENTERPRISE, TRIAL)")
	command.Flags().IntVar(&form.DurationDays, "days", 365, "validity in days")
	command.Flags().IntVar(&form.MaxActivations, "max-activations", 1, "maximum number of activations")

	return command
}

func formatDate(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(admin.DateLayout)
}

func runKeysListCommand() *cobra.Command {
	var (
		flags  clientFlags
		search string
		output string
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "List license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			svc, err := env.adminService(ctx)
			if err != nil {
				return err
			}

			keys, err := svc.Search(ctx, search)
			if err != nil {
				return env.adminError(ctx, err)
			}

			return writeKeys(cmd.OutOrStdout(), keys, output)
		},
	}

	flags.register(command)
	command.Flags().StringVar(&search, "search", "", "filter by customer name or key type")
	command.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")

	return command
}

func writeKeys(w io.Writer, keys []models.LicenseKey, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return terminal.RenderKeyTable(w, admin.BuildTable(keys))
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(keys)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type mutation func(ctx context.Context, svc *admin.Service, hash string, confirm admin.Confirmer) error

func runKeysMutateCommand(use, short string, do mutation) *cobra.Command {
	var (
		flags clientFlags
		yes   bool
	)

	command := &cobra.Command{
		Use:   use + " KEY_HASH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			svc, err := env.adminService(ctx)
			if err != nil {
				return err
			}

			var confirm admin.Confirmer = newPrompter(cmd)
			if yes {
				confirm = admin.Confirmed
			}

			err = do(ctx, svc, args[0], confirm)
			if errors.Is(err, admin.ErrCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			if err != nil {
				return env.adminError(ctx, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Key %s: %s done\n", args[0], use)
			return nil
		},
	}

	flags.register(command)
	command.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return command
}

func RunVerifyCommand() *cobra.Command {
	var flags clientFlags

	command := &cobra.Command{
		Use:   "verify LICENSE_KEY",
		Short: "Check a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := admin.NewService(env.client)
			if err != nil {
				return err
			}

			result, err := svc.Verify(cmd.Context(), args[0])
			if err != nil {
				terminal.RenderVerify(cmd.OutOrStdout(), admin.ErrorView(err))
				return err
			}

			terminal.RenderVerify(cmd.OutOrStdout(), admin.BuildVerifyView(result))
			return nil
		},
	}

	flags.register(command)
	return command
}

func RunActivateCommand() *cobra.Command {
	var flags clientFlags

	command := &cobra.Command{
		Use:   "activate LICENSE_KEY",
		Short: "Record one activation of a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := admin.NewService(env.client)
			if err != nil {
				return err
			}

			result, err := svc.Activate(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("activation failed: %w", err)
			}

			message := result.Message
			if message == "" {
				message = "License activated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (activations: %d)\n", message, result.Activations)
			return nil
		},
	}

	flags.register(command)
	return command
}
