// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/challenge"
	"github.com/autobrr/keydesk/internal/domain"
	"github.com/autobrr/keydesk/internal/gate"
	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/models"
)

var ErrNoIssuedKey = errors.New("no key data found")

// Issuance results reported to the Recorder
const (
	ResultIssued  = "issued"
	ResultFailed  = "failed"
	ResultBlocked = "blocked"
)

// Store persists the last issuance for the rate-limit gate
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Issuer requests trial keys from the license API
type Issuer interface {
	PublicGenerate(ctx context.Context, req licenseapi.PublicGenerateRequest) (*models.IssuedKey, error)
}

type Recorder interface {
	RecordIssuance(result string)
	RecordChallengeAttempt(kind, result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordIssuance(string)                 {}
func (noopRecorder) RecordChallengeAttempt(string, string) {}

// Service runs the trial flow against a Store and an Issuer
type Service struct {
	store    Store
	issuer   Issuer
	recorder Recorder
	rules    Rules
	kind     challenge.Kind
	keyType  string
	clock    func() time.Time
	rng      *rand.Rand
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithRand(r *rand.Rand) Option {
	return func(s *Service) {
		s.rng = r
	}
}

// NewService builds a kiosk from the [kiosk] configuration block
func NewService(store Store, issuer Issuer, cfg domain.KioskConfig, opts ...Option) (*Service, error) {
	kind, err := challenge.ParseKind(cfg.Challenge)
	if err != nil {
		return nil, err
	}

	rules := DefaultRules()
	if cfg.MinNameLength > 0 {
		rules.MinNameLength = cfg.MinNameLength
	}
	if cfg.CooldownHours > 0 {
		rules.Gate = gate.New(time.Duration(cfg.CooldownHours) * time.Hour)
	}
	if cfg.WaitSeconds > 0 {
		rules.WaitTicks = cfg.WaitSeconds
	}

	keyType := strings.TrimSpace(cfg.KeyType)
	if keyType == "" {
		keyType = models.KeyTypeTrial
	}

	s := &Service{
		store:    store,
		issuer:   issuer,
		recorder: noopRecorder{},
		rules:    rules,
		kind:     kind,
		keyType:  keyType,
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) Kind() challenge.Kind {
	return s.kind
}

func (s *Service) Now() time.Time {
	return s.clock()
}

// NewSession starts a wizard with the configured challenge. An empty kind
// selects the configured one.
func (s *Service) NewSession(kind challenge.Kind) *Session {
	if kind == "" {
		kind = s.kind
	}
	return NewSession(kind)
}

// LastIssued returns the stored issuance time, zero when there is none.
// An unreadable value counts as none.
func (s *Service) LastIssued(ctx context.Context) (time.Time, error) {
	raw, err := s.store.Get(ctx, models.StateLastKeyGenerated)
	if err != nil {
		if errors.Is(err, models.ErrStateNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last issuance: %w", err)
	}

	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		log.Warn().Err(err).Str("value", raw).Msg("Ignoring unreadable last issuance time")
		return time.Time{}, nil
	}

	return ts.Time, nil
}

// Eligibility evaluates the gate at the current time
func (s *Service) Eligibility(ctx context.Context) (gate.Decision, error) {
	last, err := s.LastIssued(ctx)
	if err != nil {
		return gate.Decision{}, err
	}
	return s.rules.Gate.Evaluate(last, s.clock()), nil
}

// Start submits the identity step
func (s *Service) Start(ctx context.Context, sess *Session, name string) error {
	last, err := s.LastIssued(ctx)
	if err != nil {
		return err
	}

	if err := sess.SubmitIdentity(name, last, s.clock(), s.rules, s.rng); err != nil {
		return err
	}

	if sess.Step == StepBlocked {
		s.recorder.RecordIssuance(ResultBlocked)
		log.Debug().
			Str("session", sess.ID).
			Time("eligibleAt", sess.EligibleAt).
			Msg("Trial key request blocked by rate limit")
	}

	return nil
}

// Recheck re-evaluates a blocked session
func (s *Service) Recheck(ctx context.Context, sess *Session) error {
	last, err := s.LastIssued(ctx)
	if err != nil {
		return err
	}
	return sess.Reevaluate(last, s.clock(), s.rules, s.rng)
}

// Load re-evaluates the gate when a page is shown. A session at the
// identity step is held while the gate is closed, and a blocked one is
// released once it opens.
func (s *Service) Load(ctx context.Context, sess *Session) error {
	switch sess.Step {
	case StepIdentity:
		decision, err := s.Eligibility(ctx)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return sess.Hold(decision.EligibleAt)
		}
	case StepBlocked:
		return s.Recheck(ctx, sess)
	}
	return nil
}

// Answer submits an arithmetic answer
func (s *Service) Answer(sess *Session, answer string) (bool, error) {
	ok, err := sess.SubmitAnswer(answer)
	if err != nil {
		return false, err
	}

	result := "wrong"
	if ok {
		result = "correct"
	}
	s.recorder.RecordChallengeAttempt(string(challenge.KindMath), result)

	return ok, nil
}

// WaitDone completes a timed wait once it has run out
func (s *Service) WaitDone(sess *Session) (bool, error) {
	done, err := sess.WaitDone(s.clock())
	if err != nil {
		return false, err
	}
	if done {
		s.recorder.RecordChallengeAttempt(string(challenge.KindWait), "completed")
	}
	return done, nil
}

// Issue requests a trial key for a solved session. The issuance time and
// payload are persisted only on success. Any failure reverts the session
// to the identity step with a message for the user.
func (s *Service) Issue(ctx context.Context, sess *Session) (*models.IssuedKey, error) {
	if !sess.Ready() {
		return nil, ErrWrongStep
	}

	issued, err := s.issuer.PublicGenerate(ctx, licenseapi.PublicGenerateRequest{
		CustomerName: sess.Name,
		KeyType:      s.keyType,
	})
	if err != nil {
		s.recorder.RecordIssuance(ResultFailed)
		sess.Fail(FailureMessage(err))
		log.Warn().Err(err).Str("session", sess.ID).Msg("Trial key issuance failed")
		return nil, err
	}

	now := s.clock()
	if issued.CreatedAt.IsZero() {
		issued.CreatedAt = models.NewTimestamp(now)
	}

	if err := s.persist(ctx, issued, now); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("Failed to persist issued trial key")
	}

	if err := sess.Complete(issued); err != nil {
		return nil, err
	}

	s.recorder.RecordIssuance(ResultIssued)
	log.Info().Str("session", sess.ID).Msg("Trial key issued")

	return issued, nil
}

func (s *Service) persist(ctx context.Context, issued *models.IssuedKey, now time.Time) error {
	payload, err := json.Marshal(issued)
	if err != nil {
		return fmt.Errorf("failed to encode issued key: %w", err)
	}

	if err := s.store.Set(ctx, models.StateLastKeyGenerated, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to store issuance time: %w", err)
	}
	if err := s.store.Set(ctx, models.StateLastGeneratedKey, string(payload)); err != nil {
		return fmt.Errorf("failed to store issued key: %w", err)
	}
	return nil
}

// LastKey returns the most recently issued key
func (s *Service) LastKey(ctx context.Context) (*models.IssuedKey, error) {
	raw, err := s.store.Get(ctx, models.StateLastGeneratedKey)
	if err != nil {
		if errors.Is(err, models.ErrStateNotFound) {
			return nil, ErrNoIssuedKey
		}
		return nil, fmt.Errorf("failed to read last issued key: %w", err)
	}

	var issued models.IssuedKey
	if err := json.Unmarshal([]byte(raw), &issued); err != nil {
		return nil, fmt.Errorf("failed to decode last issued key: %w", err)
	}
	return &issued, nil
}

// FailureMessage renders an issuance error for the user: API-reported
// failures carry the API message, anything else is a transport failure.
func FailureMessage(err error) string {
	if apiErr, ok := licenseapi.IsAPIError(err); ok {
		return "Error generating key: " + apiErr.Error()
	}
	return "Error: " + err.Error()
}
