// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/keydesk/internal/challenge"
	"github.com/autobrr/keydesk/internal/clipboard"
	"github.com/autobrr/keydesk/internal/gate"
	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/models"
	"github.com/autobrr/keydesk/internal/terminal"
)

const notificationDuration = 3 * time.Second

// trialTick paces the countdown and the timed wait
var trialTick = time.Second

func RunTrialCommand() *cobra.Command {
	var (
		flags         clientFlags
		name          string
		challengeKind string
		copyKey       bool
		downloadDir   string
	)

	command := &cobra.Command{
		Use:   "trial",
		Short: "Request a free trial key from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := newTrialService(env)
			if err != nil {
				return err
			}

			var kind challenge.Kind
			if challengeKind != "" {
				if kind, err = challenge.ParseKind(challengeKind); err != nil {
					return err
				}
			}

			t := &trialRun{
				svc:      svc,
				prompter: newPrompter(cmd),
				out:      cmd.OutOrStdout(),
				line:     terminal.NewLine(cmd.OutOrStdout()),
				name:     name,
			}

			ctx := cmd.Context()
			issued, err := t.run(ctx, svc.NewSession(kind))
			if err != nil {
				return err
			}

			if copyKey {
				result := clipboard.New(os.Stdout).Copy(issued.LicenseKey)
				t.line.Flash(ctx, result.Notification(), notificationDuration)
			}

			if downloadDir != "" {
				path, err := writeKeyFile(downloadDir, issued, env.client.BaseURL(), svc.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(t.out, "Saved to %s\n", path)
			}

			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&name, "name", "", "your name (will prompt if not provided)")
	command.Flags().StringVar(&challengeKind, "challenge", "", "verification challenge: math or wait (defaults to config)")
	command.Flags().BoolVar(&copyKey, "copy", false, "copy the key to the clipboard")
	command.Flags().StringVar(&downloadDir, "download", "", "write the key summary to this directory")

	command.AddCommand(runTrialStatusCommand())
	command.AddCommand(runTrialDownloadCommand())

	return command
}

func newTrialService(env *clientEnv) (*kiosk.Service, error) {
	return kiosk.NewService(env.state, env.client, env.cfg.Config.Kiosk)
}

// trialRun drives one wizard session on a terminal
type trialRun struct {
	svc      *kiosk.Service
	prompter *terminal.Prompter
	out      io.Writer
	line     *terminal.Line
	name     string
}

func (t *trialRun) run(ctx context.Context, sess *kiosk.Session) (*models.IssuedKey, error) {
	for {
		if err := t.svc.Load(ctx, sess); err != nil {
			return nil, err
		}

		switch sess.Step {
		case kiosk.StepBlocked:
			if err := t.countdown(ctx, sess.EligibleAt); err != nil {
				return nil, err
			}

		case kiosk.StepIdentity:
			if err := t.identity(ctx, sess); err != nil {
				return nil, err
			}

		case kiosk.StepVerification:
			if err := t.verify(ctx, sess); err != nil {
				return nil, err
			}

			issued, err := t.svc.Issue(ctx, sess)
			if err != nil {
				fmt.Fprintln(t.out, sess.Message)
				return nil, err
			}
			t.result(issued)
			return issued, nil

		default:
			return nil, fmt.Errorf("unexpected step %q", sess.Step)
		}
	}
}

func (t *trialRun) countdown(ctx context.Context, eligibleAt time.Time) error {
	ticker := time.NewTicker(trialTick)
	defer ticker.Stop()

	err := gate.Countdown{EligibleAt: eligibleAt, Clock: t.svc.Now}.Run(ctx, ticker.C, func(remaining time.Duration) {
		t.line.Render(terminal.CountdownText(remaining))
	})
	t.line.Done()
	return err
}

func (t *trialRun) identity(ctx context.Context, sess *kiosk.Session) error {
	for {
		name := t.name
		if name == "" {
			var err error
			if name, err = t.prompter.Line("Your name: "); err != nil {
				return err
			}
		}

		err := t.svc.Start(ctx, sess, name)
		if errors.Is(err, kiosk.ErrNameTooShort) {
			fmt.Fprintln(t.out, sess.Message)
			if t.name != "" {
				return err
			}
			continue
		}
		return err
	}
}

func (t *trialRun) verify(ctx context.Context, sess *kiosk.Session) error {
	if sess.Kind == challenge.KindWait {
		return t.wait(ctx, sess)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		answer, err := t.prompter.Line(sess.Problem.Prompt() + " ")
		if err != nil {
			return err
		}

		ok, err := t.svc.Answer(sess, answer)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		fmt.Fprintln(t.out, sess.Message)
	}
}

func (t *trialRun) wait(ctx context.Context, sess *kiosk.Session) error {
	ticker := time.NewTicker(trialTick)
	defer ticker.Stop()
	defer t.line.Done()

	for {
		now := t.svc.Now()
		t.line.Render(terminal.WaitText(sess.Wait.Progress(now), sess.Wait.Remaining(now)))

		done, err := t.svc.WaitDone(sess)
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *trialRun) result(issued *models.IssuedKey) {
	view := kiosk.ResultView(issued, t.svc.Now())
	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "🔑 %s\n", view.Key)
	fmt.Fprintf(t.out, "Generated: %s\n", view.Generated)
	fmt.Fprintf(t.out, "Expires:   %s\n", view.Expires)
}

func writeKeyFile(dir string, issued *models.IssuedKey, origin string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	path := filepath.Join(dir, kiosk.KeyFileName(now))
	if err := os.WriteFile(path, []byte(kiosk.RenderKeyFile(issued, origin, now)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}
	return path, nil
}

func runTrialStatusCommand() *cobra.Command {
	var flags clientFlags

	command := &cobra.Command{
		Use:   "status",
		Short: "Show when the next trial key is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := newTrialService(env)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			decision, err := svc.Eligibility(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if decision.Allowed {
				fmt.Fprintln(out, "✅ A trial key is available now")
			} else {
				fmt.Fprintln(out, terminal.CountdownText(decision.Remaining))
			}

			if issued, err := svc.LastKey(ctx); err == nil {
				view := kiosk.ResultView(issued, svc.Now())
				fmt.Fprintf(out, "Last key: %s (expires %s)\n", view.Key, view.Expires)
			}
			return nil
		},
	}

	flags.register(command)
	return command
}

func runTrialDownloadCommand() *cobra.Command {
	var (
		flags clientFlags
		dir   string
	)

	command := &cobra.Command{
		Use:   "download",
		Short: "Write the last trial key summary to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := newTrialService(env)
			if err != nil {
				return err
			}

			issued, err := svc.LastKey(cmd.Context())
			if err != nil {
				return err
			}

			path, err := writeKeyFile(dir, issued, env.client.BaseURL(), svc.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", path)
			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&dir, "dir", ".", "directory to write the key summary to")

	return command
}
