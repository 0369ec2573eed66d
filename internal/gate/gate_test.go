// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		last          time.Time
		wantAllowed   bool
		wantRemaining time.Duration
	}{
		{name: "never issued", last: time.Time{}, wantAllowed: true},
		{name: "ten hours ago", last: now.Add(-10 * time.Hour), wantAllowed: false, wantRemaining: 14 * time.Hour},
		{name: "just issued", last: now, wantAllowed: false, wantRemaining: 24 * time.Hour},
		{name: "one second short", last: now.Add(-24*time.Hour + time.Second), wantAllowed: false, wantRemaining: time.Second},
		{name: "exactly a day", last: now.Add(-24 * time.Hour), wantAllowed: true},
		{name: "two days ago", last: now.Add(-48 * time.Hour), wantAllowed: true},
		{name: "future timestamp counts as now", last: now.Add(5 * time.Hour), wantAllowed: false, wantRemaining: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.last, now)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantRemaining, d.Remaining)
			if !tt.wantAllowed {
				assert.Equal(t, now.Add(tt.wantRemaining), d.EligibleAt)
			}
		})
	}
}

func TestGate_CustomWindow(t *testing.T) {
	now := time.Now()
	g := New(time.Hour)

	assert.False(t, g.Evaluate(now.Add(-30*time.Minute), now).Allowed)
	assert.True(t, g.Evaluate(now.Add(-time.Hour), now).Allowed)

	assert.Equal(t, DefaultWindow, New(0).Window)
}

func TestRemaining(t *testing.T) {
	now := time.Now()
	assert.Equal(t, time.Minute, Remaining(now.Add(time.Minute), now))
	assert.Equal(t, time.Duration(0), Remaining(now.Add(-time.Minute), now))
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 14 * time.Hour, want: "14:00:00"},
		{in: 14*time.Hour - 1500*time.Millisecond, want: "13:59:58"},
		{in: 90 * time.Second, want: "00:01:30"},
		{in: 0, want: "00:00:00"},
		{in: -time.Second, want: "00:00:00"},
		{in: 30 * time.Hour, want: "30:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.in))
		})
	}
}

func TestCountdown_RunsToZero(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Countdown{
		EligibleAt: start.Add(3 * time.Second),
		Clock:      func() time.Time { return start },
	}

	ticks := make(chan time.Time, 3)
	for i := 1; i <= 3; i++ {
		ticks <- start.Add(time.Duration(i) * time.Second)
	}

	var rendered []string
	err := c.Run(t.Context(), ticks, func(d time.Duration) {
		rendered = append(rendered, FormatClock(d))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00:03", "00:00:02", "00:00:01", "00:00:00"}, rendered)
}

func TestCountdown_RecomputesFromTickTime(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Countdown{
		EligibleAt: start.Add(time.Hour),
		Clock:      func() time.Time { return start },
	}

	// a late tick jumps straight to the correct remaining time
	ticks := make(chan time.Time, 1)
	ticks <- start.Add(time.Hour + time.Minute)

	var last time.Duration
	err := c.Run(t.Context(), ticks, func(d time.Duration) { last = d })
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), last)
}

func TestCountdown_Cancel(t *testing.T) {
	start := time.Now()
	c := Countdown{
		EligibleAt: start.Add(time.Hour),
		Clock:      func() time.Time { return start },
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	renders := 0
	err := c.Run(ctx, make(chan time.Time), func(time.Duration) { renders++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, renders)
}

func TestCountdown_AlreadyElapsed(t *testing.T) {
	now := time.Now()
	c := Countdown{EligibleAt: now.Add(-time.Second), Clock: func() time.Time { return now }}

	err := c.Run(t.Context(), nil, func(d time.Duration) {
		assert.Equal(t, time.Duration(0), d)
	})
	assert.NoError(t, err)
}
