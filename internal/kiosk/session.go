// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package kiosk

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autobrr/keydesk/internal/challenge"
	"github.com/autobrr/keydesk/internal/gate"
	"github.com/autobrr/keydesk/internal/models"
)

var (
	ErrNameTooShort = errors.New("name too short")
	ErrWrongStep    = errors.New("action not available at this step")
)

type Step string

const (
	StepIdentity     Step = "identity"
	StepBlocked      Step = "blocked"
	StepVerification Step = "verification"
	StepResult       Step = "result"
)

const DefaultMinNameLength = 3

var validate = validator.New(validator.WithRequiredStructEnabled())

// Rules are the tunables a session is evaluated against
type Rules struct {
	MinNameLength int
	Gate          gate.Gate
	WaitTicks     int
}

func DefaultRules() Rules {
	return Rules{
		MinNameLength: DefaultMinNameLength,
		Gate:          gate.New(gate.DefaultWindow),
		WaitTicks:     challenge.DefaultTicks,
	}
}

// Session is the wizard state of one issuance attempt. Transitions mutate
// the session and never perform I/O.
type Session struct {
	ID         string                `json:"id"`
	Step       Step                  `json:"step"`
	Name       string                `json:"name,omitempty"`
	Kind       challenge.Kind        `json:"kind"`
	Problem    *challenge.Arithmetic `json:"problem,omitempty"`
	Wait       *challenge.Wait       `json:"wait,omitempty"`
	Solved     bool                  `json:"solved,omitempty"`
	Attempts   int                   `json:"attempts,omitempty"`
	EligibleAt time.Time             `json:"eligible_at,omitzero"`
	Issued     *models.IssuedKey     `json:"issued,omitempty"`
	Message    string                `json:"message,omitempty"`
}

func NewSession(kind challenge.Kind) *Session {
	if kind == "" {
		kind = challenge.KindMath
	}
	return &Session{
		ID:   uuid.NewString(),
		Step: StepIdentity,
		Kind: kind,
	}
}

// ValidateName trims name and checks its length in characters
func ValidateName(name string, minLength int) (string, error) {
	name = strings.TrimSpace(name)
	if minLength <= 0 {
		minLength = DefaultMinNameLength
	}
	if err := validate.Var(name, fmt.Sprintf("required,min=%d", minLength)); err != nil {
		return name, fmt.Errorf("%w: enter at least %d characters", ErrNameTooShort, minLength)
	}
	return name, nil
}

// SubmitIdentity records the display name and runs the rate-limit gate
// against last. An eligible session moves on to its challenge.
func (s *Session) SubmitIdentity(name string, last, now time.Time, rules Rules, rng *rand.Rand) error {
	if s.Step != StepIdentity && s.Step != StepBlocked {
		return ErrWrongStep
	}

	minLength := rules.MinNameLength
	if minLength <= 0 {
		minLength = DefaultMinNameLength
	}

	trimmed, err := ValidateName(name, minLength)
	if err != nil {
		s.Message = fmt.Sprintf("Please enter at least %d characters", minLength)
		return err
	}

	s.Name = trimmed
	s.Message = ""
	s.evaluate(last, now, rules, rng)
	return nil
}

// Reevaluate re-runs the gate for a blocked session, typically once its
// countdown reaches zero.
func (s *Session) Reevaluate(last, now time.Time, rules Rules, rng *rand.Rand) error {
	if s.Step != StepBlocked {
		return ErrWrongStep
	}
	s.evaluate(last, now, rules, rng)
	return nil
}

func (s *Session) evaluate(last, now time.Time, rules Rules, rng *rand.Rand) {
	decision := rules.Gate.Evaluate(last, now)
	if !decision.Allowed {
		s.Step = StepBlocked
		s.EligibleAt = decision.EligibleAt
		return
	}

	// held before a name was given
	if s.Name == "" {
		s.Step = StepIdentity
		s.EligibleAt = time.Time{}
		return
	}

	s.Step = StepVerification
	s.EligibleAt = time.Time{}
	s.Solved = false
	s.Attempts = 0
	s.Problem = nil
	s.Wait = nil

	switch s.Kind {
	case challenge.KindWait:
		w := challenge.NewWait(now, rules.WaitTicks)
		s.Wait = &w
	default:
		s.Kind = challenge.KindMath
		p := challenge.NewArithmetic(rng)
		s.Problem = &p
	}
}

// Hold blocks a session that has not submitted a name yet
func (s *Session) Hold(eligibleAt time.Time) error {
	if s.Step != StepIdentity {
		return ErrWrongStep
	}
	s.Step = StepBlocked
	s.EligibleAt = eligibleAt
	return nil
}

// SubmitAnswer checks an arithmetic answer. A wrong answer keeps the same
// problem and can be retried any number of times.
func (s *Session) SubmitAnswer(answer string) (bool, error) {
	if s.Step != StepVerification || s.Kind != challenge.KindMath || s.Problem == nil {
		return false, ErrWrongStep
	}

	s.Attempts++
	if !s.Problem.Check(answer) {
		s.Message = "Incorrect answer, try again"
		return false, nil
	}

	s.Solved = true
	s.Message = ""
	return true, nil
}

// WaitDone marks a timed-wait challenge as solved once it has run out
func (s *Session) WaitDone(now time.Time) (bool, error) {
	if s.Step != StepVerification || s.Kind != challenge.KindWait || s.Wait == nil {
		return false, ErrWrongStep
	}
	if !s.Wait.Done(now) {
		return false, nil
	}
	s.Solved = true
	return true, nil
}

// Ready reports whether a key may be requested
func (s *Session) Ready() bool {
	return s.Step == StepVerification && s.Solved
}

// Complete moves a solved session to the result step
func (s *Session) Complete(issued *models.IssuedKey) error {
	if !s.Ready() {
		return ErrWrongStep
	}
	s.Step = StepResult
	s.Issued = issued
	s.Message = ""
	return nil
}

// Fail reverts to the identity step and keeps message for display
func (s *Session) Fail(message string) {
	s.Step = StepIdentity
	s.Problem = nil
	s.Wait = nil
	s.Solved = false
	s.Attempts = 0
	s.Issued = nil
	s.EligibleAt = time.Time{}
	s.Message = message
}

// Reset starts over with the same id and challenge kind
func (s *Session) Reset() {
	*s = Session{ID: s.ID, Step: StepIdentity, Kind: s.Kind}
}
