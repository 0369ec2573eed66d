// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keydesk/internal/auth"
	"github.com/autobrr/keydesk/internal/challenge"
	"github.com/autobrr/keydesk/internal/gate"
	"github.com/autobrr/keydesk/internal/kiosk"
	"github.com/autobrr/keydesk/internal/web"
)

// KioskFactory binds a kiosk to one browser's persisted state
type KioskFactory func(store kiosk.Store) (*kiosk.Service, error)

type KioskHandler struct {
	newService KioskFactory
	sessions   *auth.Service
	web        *web.Handler
}

func NewKioskHandler(factory KioskFactory, sessions *auth.Service, webHandler *web.Handler) *KioskHandler {
	return &KioskHandler{
		newService: factory,
		sessions:   sessions,
		web:        webHandler,
	}
}

type kioskPage struct {
	Step          kiosk.Step
	Name          string
	MinNameLength int
	Message       string
	Countdown     string
	Problem       string
	Progress      int
	WaitRemaining int
	Result        kiosk.Result
}

// kioskRequest is the per-request view of the trial flow
type kioskRequest struct {
	svc    *kiosk.Service
	state  *auth.KioskState
	wizard *kiosk.Session
}

func (h *KioskHandler) load(r *http.Request) (*kioskRequest, error) {
	state := h.sessions.KioskState(r)
	svc, err := h.newService(state)
	if err != nil {
		return nil, err
	}

	wizard := h.sessions.Wizard(r)
	if wizard == nil {
		wizard = svc.NewSession("")
	}

	return &kioskRequest{svc: svc, state: state, wizard: wizard}, nil
}

func (h *KioskHandler) save(w http.ResponseWriter, r *http.Request, kr *kioskRequest) bool {
	if err := kr.state.Save(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to save kiosk state")
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return false
	}
	if err := h.sessions.SaveWizard(w, r, kr.wizard); err != nil {
		log.Error().Err(err).Msg("Failed to save wizard")
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *KioskHandler) fail(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("Kiosk request failed")
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// next redirects to the page for the wizard's current step
func (h *KioskHandler) next(w http.ResponseWriter, r *http.Request, kr *kioskRequest) {
	if !h.save(w, r, kr) {
		return
	}
	if kr.wizard.Step == kiosk.StepVerification && kr.wizard.Kind == challenge.KindWait {
		h.web.Redirect(w, r, "/get-key/wait")
		return
	}
	h.web.Redirect(w, r, "/get-key")
}

// Show renders the page for the current step
func (h *KioskHandler) Show(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := kr.svc.Load(r.Context(), kr.wizard); err != nil {
		h.fail(w, err)
		return
	}

	if kr.wizard.Step == kiosk.StepVerification && kr.wizard.Kind == challenge.KindWait {
		h.next(w, r, kr)
		return
	}

	if !h.save(w, r, kr) {
		return
	}

	now := kr.svc.Now()
	page := kioskPage{
		Step:          kr.wizard.Step,
		Name:          kr.wizard.Name,
		MinNameLength: kr.svc.Rules().MinNameLength,
		Message:       kr.wizard.Message,
	}

	refresh := 0
	switch kr.wizard.Step {
	case kiosk.StepBlocked:
		page.Countdown = gate.FormatClock(gate.Remaining(kr.wizard.EligibleAt, now))
		refresh = 1
	case kiosk.StepVerification:
		if kr.wizard.Problem != nil {
			page.Problem = kr.wizard.Problem.Prompt()
		}
	case kiosk.StepResult:
		if kr.wizard.Issued != nil {
			page.Result = kiosk.ResultView(kr.wizard.Issued, now)
		}
	}

	h.web.Render(w, r, http.StatusOK, "kiosk.html", "Free Trial", refresh, page)
}

// Identity handles the name form
func (h *KioskHandler) Identity(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	err = kr.svc.Start(r.Context(), kr.wizard, r.PostFormValue("name"))
	switch {
	case err == nil, errors.Is(err, kiosk.ErrNameTooShort), errors.Is(err, kiosk.ErrWrongStep):
		h.next(w, r, kr)
	default:
		h.fail(w, err)
	}
}

// Answer handles the arithmetic form. A correct answer requests the key
// right away.
func (h *KioskHandler) Answer(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	ok, err := kr.svc.Answer(kr.wizard, r.PostFormValue("answer"))
	if err != nil && !errors.Is(err, kiosk.ErrWrongStep) {
		h.fail(w, err)
		return
	}

	if ok {
		// the failure is already on the wizard for display
		_, _ = kr.svc.Issue(r.Context(), kr.wizard)
	}

	h.next(w, r, kr)
}

// Wait renders the timed-wait progress and requests the key once it
// has run out
func (h *KioskHandler) Wait(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	if kr.wizard.Step != kiosk.StepVerification || kr.wizard.Kind != challenge.KindWait || kr.wizard.Wait == nil {
		h.web.Redirect(w, r, "/get-key")
		return
	}

	done, err := kr.svc.WaitDone(kr.wizard)
	if err != nil {
		h.fail(w, err)
		return
	}

	if done {
		_, _ = kr.svc.Issue(r.Context(), kr.wizard)
		if !h.save(w, r, kr) {
			return
		}
		h.web.Redirect(w, r, "/get-key")
		return
	}

	now := kr.svc.Now()
	h.web.Render(w, r, http.StatusOK, "kiosk.html", "Free Trial", 1, kioskPage{
		Step:          kr.wizard.Step,
		Name:          kr.wizard.Name,
		Progress:      kr.wizard.Wait.Progress(now),
		WaitRemaining: kr.wizard.Wait.Remaining(now),
	})
}

// Reset starts the wizard over
func (h *KioskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	kr.wizard.Reset()
	h.next(w, r, kr)
}

// Download sends the last issued key as a text file
func (h *KioskHandler) Download(w http.ResponseWriter, r *http.Request) {
	kr, err := h.load(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	issued, err := kr.svc.LastKey(r.Context())
	if err != nil {
		if errors.Is(err, kiosk.ErrNoIssuedKey) {
			http.Error(w, "No key data found", http.StatusNotFound)
			return
		}
		h.fail(w, err)
		return
	}

	now := kr.svc.Now()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kiosk.KeyFileName(now)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(kiosk.RenderKeyFile(issued, requestOrigin(r), now)))
}
