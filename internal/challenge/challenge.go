// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package challenge holds the two bot-deterrence gates shown before a trial
// key is issued. Both are purely client side.
package challenge

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindMath Kind = "math"
	KindWait Kind = "wait"
)

func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts "math" or "wait" (case-insensitive). Empty selects math.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "math", "captcha":
		return KindMath, nil
	case "wait", "timer":
		return KindWait, nil
	default:
		return "", fmt.Errorf("unknown challenge %q (expected math or wait)", s)
	}
}

const (
	MinOperand = 1
	MaxOperand = 20
)

// Arithmetic is a single a+b problem
type Arithmetic struct {
	A int `json:"a"`
	B int `json:"b"`
}

// NewArithmetic draws both operands from [MinOperand, MaxOperand]. A nil r
// uses the global source.
func NewArithmetic(r *rand.Rand) Arithmetic {
	return Arithmetic{A: operand(r), B: operand(r)}
}

func operand(r *rand.Rand) int {
	n := MaxOperand - MinOperand + 1
	if r == nil {
		return rand.IntN(n) + MinOperand
	}
	return r.IntN(n) + MinOperand
}

func (a Arithmetic) Prompt() string {
	return fmt.Sprintf("What is %d + %d?", a.A, a.B)
}

func (a Arithmetic) Answer() int {
	return a.A + a.B
}

// Check compares a typed answer against the sum. Anything that is not an
// integer is wrong.
func (a Arithmetic) Check(input string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	return n == a.Answer()
}

const (
	DefaultTicks    = 10
	DefaultInterval = time.Second
)

// Wait is a fixed-length countdown that completes on its own. All values
// are derived from StartedAt, so re-rendering never drifts.
type Wait struct {
	StartedAt time.Time     `json:"started_at"`
	Ticks     int           `json:"ticks"`
	Interval  time.Duration `json:"interval"`
}

// NewWait starts a wait of ticks intervals of one second
func NewWait(startedAt time.Time, ticks int) Wait {
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	return Wait{StartedAt: startedAt, Ticks: ticks, Interval: DefaultInterval}
}

func (w Wait) normalized() Wait {
	if w.Ticks <= 0 {
		w.Ticks = DefaultTicks
	}
	if w.Interval <= 0 {
		w.Interval = DefaultInterval
	}
	return w
}

// Total is the full length of the wait
func (w Wait) Total() time.Duration {
	w = w.normalized()
	return time.Duration(w.Ticks) * w.Interval
}

// Elapsed is the number of whole ticks that have passed, capped at Ticks
func (w Wait) Elapsed(now time.Time) int {
	w = w.normalized()
	d := now.Sub(w.StartedAt)
	if d < 0 {
		return 0
	}
	k := int(d / w.Interval)
	if k > w.Ticks {
		return w.Ticks
	}
	return k
}

// Progress is the completed share in percent
func (w Wait) Progress(now time.Time) int {
	w = w.normalized()
	return w.Elapsed(now) * 100 / w.Ticks
}

// Remaining is the number of ticks still to go
func (w Wait) Remaining(now time.Time) int {
	w = w.normalized()
	return w.Ticks - w.Elapsed(now)
}

func (w Wait) Done(now time.Time) bool {
	return w.Remaining(now) == 0
}
