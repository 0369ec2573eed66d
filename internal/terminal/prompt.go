// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers from a terminal or a plain stream
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	inFile *os.File
}

// NewPrompter reads from in and writes prompts to out. in may be nil for
// a non-interactive stream set with WithInput.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	p := &Prompter{out: out, inFile: in}
	if in != nil {
		p.in = bufio.NewReader(in)
	}
	return p
}

// WithInput replaces the input stream, used by tests and piped input
func (p *Prompter) WithInput(r io.Reader) *Prompter {
	p.in = bufio.NewReader(r)
	p.inFile = nil
	return p
}

func (p *Prompter) interactive() bool {
	return p.inFile != nil && term.IsTerminal(int(p.inFile.Fd()))
}

// Line prints prompt and returns the trimmed answer
func (p *Prompter) Line(prompt string) (string, error) {
	if p.in == nil {
		return "", errors.New("no input available")
	}
	fmt.Fprint(p.out, prompt)

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Password reads without echo when attached to a terminal
func (p *Prompter) Password(prompt string) (string, error) {
	if p.interactive() {
		fmt.Fprint(p.out, prompt)
		password, err := term.ReadPassword(int(p.inFile.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	password, err := p.Line(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return password, nil
}

// Confirm asks a yes/no question, defaulting to no
func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	answer, err := p.Line(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
