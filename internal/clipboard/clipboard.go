// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package clipboard copies text with the system clipboard when it can and
// falls back to an OSC 52 terminal escape otherwise.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var ErrUnavailable = errors.New("clipboard unavailable")

const (
	MethodNative   = "native"
	MethodFallback = "osc52"
	MethodNone     = "none"
)

const (
	CopiedMessage = "✅ License key copied to clipboard!"
	FailedMessage = "❌ Copy failed. Please select and copy manually."
)

// Result reports how a copy went
type Result struct {
	Method string
	Err    error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Notification is the message shown to the user
func (r Result) Notification() string {
	if r.OK() {
		return CopiedMessage
	}
	return FailedMessage
}

// Copier tries Native when Secure reports a usable system clipboard, then
// Fallback. There is no read-back of the copied content.
type Copier struct {
	Native   func(text string) error
	Secure   func() bool
	Fallback func(text string) error
}

// New returns a copier for the current process. The fallback escape is
// written to out, which must be a terminal for it to count as success.
func New(out *os.File) *Copier {
	return &Copier{
		Native: clipboard.WriteAll,
		Secure: func() bool {
			return SecureContext(clipboard.Unsupported, os.Getenv)
		},
		Fallback: OSC52(out, func() bool {
			return term.IsTerminal(int(out.Fd()))
		}),
	}
}

func (c *Copier) Copy(text string) Result {
	if c.Native != nil && c.Secure != nil && c.Secure() {
		err := c.Native(text)
		if err == nil {
			return Result{Method: MethodNative}
		}
		log.Debug().Err(err).Msg("System clipboard rejected write, falling back")
	}

	if c.Fallback == nil {
		return Result{Method: MethodNone, Err: ErrUnavailable}
	}

	if err := c.Fallback(text); err != nil {
		return Result{Method: MethodFallback, Err: err}
	}
	return Result{Method: MethodFallback}
}

// SecureContext reports whether the system clipboard belongs to the user
// at the keyboard. Over SSH it belongs to the remote host instead.
func SecureContext(unsupported bool, getenv func(string) string) bool {
	if unsupported {
		return false
	}
	return getenv("SSH_TTY") == "" && getenv("SSH_CONNECTION") == ""
}

// OSC52 returns a writer of the terminal clipboard escape sequence
func OSC52(w io.Writer, isTerminal func() bool) func(text string) error {
	return func(text string) error {
		if w == nil || isTerminal == nil || !isTerminal() {
			return ErrUnavailable
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(text))
		if _, err := fmt.Fprintf(w, "\x1b]52;c;%s\a", encoded); err != nil {
			return fmt.Errorf("failed to write clipboard escape: %w", err)
		}
		return nil
	}
}
