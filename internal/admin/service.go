// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-playground/validator/v10"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/licenseapi"
	"github.com/autobrr/keydesk/internal/models"
)

var ErrCancelled = errors.New("cancelled")

const (
	ToggleConfirmation = "Are you sure you want to toggle this key status?"
	DeleteConfirmation = "Are you sure you want to delete this key? This action cannot be undone."
)

const defaultListTTL = 5 * time.Second

// API is the part of the license API the admin console drives
type API interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Generate(ctx context.Context, req licenseapi.GenerateRequest) (*models.IssuedKey, error)
	ListKeys(ctx context.Context) ([]models.LicenseKey, error)
	ToggleKey(ctx context.Context, keyHash string) (*licenseapi.ToggleResult, error)
	DeleteKey(ctx context.Context, keyHash string) error
	Verify(ctx context.Context, licenseKey string) (*licenseapi.VerifyResult, error)
	Activate(ctx context.Context, licenseKey string) (*licenseapi.ActivateResult, error)
}

// Confirmer asks the operator before a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Confirmed skips the question, for callers that already asked
var Confirmed Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// GenerateForm is the admin key generation form
type GenerateForm struct {
	CustomerName   string `validate:"required"`
	KeyType        string `validate:"required,keytype"`
	DurationDays   int    `validate:"gte=1"`
	MaxActivations int    `validate:"gte=1"`
}

// NewCache creates the key list cache. One cache can back many services
// as long as each uses its own scope.
func NewCache() (*ristretto.Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return cache, nil
}

// Service performs admin operations against the license API
type Service struct {
	api      API
	cache    *ristretto.Cache
	scope    string
	ttl      time.Duration
	validate *validator.Validate
}

type Option func(*Service)

// WithCache shares cache between services. scope keeps each admin
// session's list apart.
func WithCache(cache *ristretto.Cache, scope string) Option {
	return func(s *Service) {
		s.cache = cache
		s.scope = scope
	}
}

func WithListTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func NewService(api API, opts ...Option) (*Service, error) {
	s := &Service{
		api:      api,
		scope:    "default",
		ttl:      defaultListTTL,
		validate: newValidator(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		cache, err := NewCache()
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// any single token; the API defines the known types
	_ = v.RegisterValidation("keytype", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value != "" && !strings.ContainsAny(value, " \t\r\n")
	})
	return v
}

func (s *Service) listKey() string {
	return "keys:" + s.scope
}

func (s *Service) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return errors.New("username and password are required")
	}
	if err := s.api.Login(ctx, username, password); err != nil {
		return err
	}
	s.cache.Del(s.listKey())
	log.Info().Str("username", username).Msg("Admin logged in")
	return nil
}

func (s *Service) Logout(ctx context.Context) error {
	s.cache.Del(s.listKey())
	return s.api.Logout(ctx)
}

// ValidateForm checks a generation form without sending anything
func (s *Service) ValidateForm(form GenerateForm) error {
	form.CustomerName = strings.TrimSpace(form.CustomerName)
	if err := s.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s", fieldLabel(verrs[0].Field()))
		}
		return err
	}
	return nil
}

func fieldLabel(field string) string {
	switch field {
	case "CustomerName":
		return "customer name"
	case "KeyType":
		return "key type"
	case "DurationDays":
		return "duration (days)"
	case "MaxActivations":
		return "max activations"
	default:
		return field
	}
}

// Generate validates form and creates a key
func (s *Service) Generate(ctx context.Context, form GenerateForm) (*models.IssuedKey, error) {
	if err := s.ValidateForm(form); err != nil {
		return nil, err
	}

	issued, err := s.api.Generate(ctx, licenseapi.GenerateRequest{
		CustomerName:   strings.TrimSpace(form.CustomerName),
		KeyType:        strings.ToUpper(form.KeyType),
		DurationDays:   form.DurationDays,
		MaxActivations: form.MaxActivations,
	})
	if err != nil {
		return nil, err
	}

	s.cache.Del(s.listKey())
	return issued, nil
}

// List returns the key list, served from cache for a few seconds
func (s *Service) List(ctx context.Context) ([]models.LicenseKey, error) {
	if cached, found := s.cache.Get(s.listKey()); found {
		if keys, ok := cached.([]models.LicenseKey); ok {
			return keys, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh fetches the key list and replaces the cached copy
func (s *Service) Refresh(ctx context.Context) ([]models.LicenseKey, error) {
	keys, err := s.api.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetWithTTL(s.listKey(), keys, 1, s.ttl)
	s.cache.Wait()

	return keys, nil
}

// Search filters the key list on customer name and key type. Substring
// matches rank before fuzzy ones.
func (s *Service) Search(ctx context.Context, query string) ([]models.LicenseKey, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return keys, nil
	}

	type match struct {
		key   models.LicenseKey
		score int
	}

	lowered := strings.ToLower(query)
	matches := make([]match, 0, len(keys))
	for _, key := range keys {
		name := strings.ToLower(key.CustomerName)
		keyType := strings.ToLower(key.KeyType)

		switch {
		case strings.Contains(name, lowered):
			matches = append(matches, match{key: key, score: 0})
		case strings.Contains(keyType, lowered):
			matches = append(matches, match{key: key, score: 1})
		case fuzzy.MatchNormalizedFold(query, key.CustomerName):
			score := fuzzy.RankMatchNormalizedFold(query, key.CustomerName)
			if score < 10 {
				matches = append(matches, match{key: key, score: 2 + score})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	filtered := make([]models.LicenseKey, len(matches))
	for i, m := range matches {
		filtered[i] = m.key
	}

	log.Debug().
		Str("search", query).
		Int("totalKeys", len(keys)).
		Int("matchedKeys", len(filtered)).
		Msg("Key search completed")

	return filtered, nil
}

// Toggle flips a key's status after confirmation and returns the fresh list
func (s *Service) Toggle(ctx context.Context, keyHash string, confirm Confirmer) ([]models.LicenseKey, error) {
	return s.mutate(ctx, ToggleConfirmation, confirm, func() error {
		_, err := s.api.ToggleKey(ctx, keyHash)
		return err
	})
}

// Delete removes a key after confirmation and returns the fresh list
func (s *Service) Delete(ctx context.Context, keyHash string, confirm Confirmer) ([]models.LicenseKey, error) {
	return s.mutate(ctx, DeleteConfirmation, confirm, func() error {
		return s.api.DeleteKey(ctx, keyHash)
	})
}

// mutate leaves the cached list alone when the request fails
func (s *Service) mutate(ctx context.Context, prompt string, confirm Confirmer, do func() error) ([]models.LicenseKey, error) {
	if confirm == nil {
		return nil, ErrCancelled
	}

	ok, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	if err := do(); err != nil {
		return nil, err
	}

	s.cache.Del(s.listKey())
	return s.Refresh(ctx)
}

func (s *Service) Verify(ctx context.Context, licenseKey string) (*licenseapi.VerifyResult, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return &licenseapi.VerifyResult{Valid: false, Message: "License key is required"}, nil
	}
	return s.api.Verify(ctx, licenseKey)
}

func (s *Service) Activate(ctx context.Context, licenseKey string) (*licenseapi.ActivateResult, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return nil, errors.New("license key is required")
	}
	return s.api.Activate(ctx, licenseKey)
}
