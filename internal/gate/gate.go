// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package gate implements the client-side trial rate limit. Nothing here is
// persisted: every decision is recomputed from the last issuance time.
package gate

import (
	"context"
	"fmt"
	"time"
)

const DefaultWindow = 24 * time.Hour

// Decision is the outcome of evaluating the gate at a point in time
type Decision struct {
	Allowed    bool
	EligibleAt time.Time
	Remaining  time.Duration
}

// Gate blocks a client for Window after each issuance
type Gate struct {
	Window time.Duration
}

func New(window time.Duration) Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return Gate{Window: window}
}

// Evaluate decides whether a new issuance is allowed at now. A zero last
// means no key was ever issued.
func (g Gate) Evaluate(last, now time.Time) Decision {
	if last.IsZero() {
		return Decision{Allowed: true, EligibleAt: now}
	}

	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}

	// clock skew: a timestamp from the future counts as issued now
	if last.After(now) {
		last = now
	}

	eligibleAt := last.Add(window)
	if now.Sub(last) >= window {
		return Decision{Allowed: true, EligibleAt: eligibleAt}
	}

	return Decision{
		Allowed:    false,
		EligibleAt: eligibleAt,
		Remaining:  Remaining(eligibleAt, now),
	}
}

// Evaluate applies the default 24 hour window
func Evaluate(last, now time.Time) Decision {
	return New(DefaultWindow).Evaluate(last, now)
}

// Remaining is the time left until eligibleAt, never negative
func Remaining(eligibleAt, now time.Time) time.Duration {
	d := eligibleAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FormatClock renders d as HH:MM:SS, floored to the second
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Countdown drives a live display of the time left until EligibleAt
type Countdown struct {
	EligibleAt time.Time
	Clock      func() time.Time
}

// Run renders once immediately and again on every tick, each time
// recomputing the remaining time from the tick's timestamp. It returns nil
// when the remaining time reaches zero and ctx.Err() when cancelled.
func (c Countdown) Run(ctx context.Context, ticks <-chan time.Time, render func(remaining time.Duration)) error {
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}

	remaining := Remaining(c.EligibleAt, clock())
	render(remaining)
	if remaining == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return ctx.Err()
			}
			remaining = Remaining(c.EligibleAt, now)
			render(remaining)
			if remaining == 0 {
				return nil
			}
		}
	}
}
