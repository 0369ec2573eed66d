// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/keydesk/internal/gate"
)

const clearLine = "\r\x1b[2K"

// Line redraws a single terminal line in place
type Line struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLine(out io.Writer) *Line {
	return &Line{out: out}
}

func (l *Line) Render(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, clearLine+text)
}

// Clear erases the line
func (l *Line) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, clearLine)
}

// Done ends the line so later output starts below it
func (l *Line) Done() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out)
}

// Flash shows text until d has passed or ctx is done, then erases it
func (l *Line) Flash(ctx context.Context, text string, d time.Duration) {
	l.Render(text)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	l.Clear()
}

func CountdownText(remaining time.Duration) string {
	return "⏳ Next trial key available in " + gate.FormatClock(remaining)
}

// ProgressBar draws percent as a bar of width cells
func ProgressBar(percent, width int) string {
	if width <= 0 {
		width = 20
	}
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}

func WaitText(percent, remaining int) string {
	return fmt.Sprintf("%s  %ds left", ProgressBar(percent, 20), remaining)
}
