// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the terminal interface for the roster client.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/timer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/ui/styles"
)

// verifyResultMsg carries the outcome of a code verification.
type verifyResultMsg struct {
	ok  bool
	err error
}

// ChallengeModel is the second-factor code entry view. The countdown it
// shows is advisory UI state; the provider enforces the real code window.
type ChallengeModel struct {
	orch *auth.Orchestrator

	code       textinput.Model
	countdown  timer.Model
	submitting bool
	errMsg     string
}

// NewChallengeModel creates the code entry view.
func NewChallengeModel(orch *auth.Orchestrator) ChallengeModel {
	code := textinput.New()
	code.Placeholder = "000000"
	code.CharLimit = auth.CodeLength
	code.Width = 12
	code.Prompt = "> "
	code.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	code.Focus()

	return ChallengeModel{
		orch:      orch,
		code:      code,
		countdown: timer.NewWithInterval(auth.CodeWindow, time.Second),
	}
}

// Start restarts the advisory countdown when the view becomes active.
func (m *ChallengeModel) Start() tea.Cmd {
	m.code.SetValue("")
	m.code.Focus()
	m.submitting = false
	m.errMsg = ""
	m.countdown = timer.NewWithInterval(auth.CodeWindow, time.Second)
	return m.countdown.Init()
}

// Update handles messages for the code entry view.
func (m ChallengeModel) Update(msg tea.Msg) (ChallengeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case timer.TickMsg, timer.StartStopMsg:
		var cmd tea.Cmd
		m.countdown, cmd = m.countdown.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.submitting {
			return m, nil
		}
		switch msg.String() {
		case "esc":
			m.orch.CancelSecondFactor()
			return m, nil
		case "enter":
			m.submitting = true
			m.errMsg = ""
			return m, m.submit()
		}

	case verifyResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.errMsg = verifyErrorText(msg.err)
			if errors.Is(msg.err, auth.ErrRejectedCode) {
				// Rejected returns to idle with the field cleared.
				m.code.SetValue("")
				if challenge := m.orch.Challenge(); challenge != nil {
					challenge.Reset()
				}
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	return m, cmd
}

// submit runs the verification off the UI loop.
func (m ChallengeModel) submit() tea.Cmd {
	code := m.code.Value()
	orch := m.orch
	return func() tea.Msg {
		ok, err := orch.VerifySecondFactor(context.Background(), code)
		return verifyResultMsg{ok: ok, err: err}
	}
}

// View renders the code entry view.
func (m ChallengeModel) View() string {
	remaining := "expired"
	if !m.countdown.Timedout() {
		remaining = fmt.Sprintf("%ds", int(m.countdown.Timeout.Seconds()))
	}

	body := styles.TitleStyle.Render("Second factor required") + "\n\n" +
		styles.LabelStyle.Render("Enter the 6-digit code from your authenticator") + "\n" +
		m.code.View() + "\n\n" +
		styles.HintStyle.Render("code window: "+remaining)

	if m.submitting {
		body += "\n\n" + styles.HintStyle.Render("Verifying…")
	} else if m.errMsg != "" {
		body += "\n\n" + styles.ErrorStyle.Render(m.errMsg)
	}

	body += "\n\n" + styles.HintStyle.Render("enter: verify • esc: cancel")
	return styles.BoxStyle.Render(body)
}

// verifyErrorText maps verification errors onto user-facing text, keeping
// malformed input distinct from a wrong code.
func verifyErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return fmt.Sprintf("The code must be exactly %d digits.", auth.CodeLength)
	case errors.Is(err, auth.ErrRejectedCode):
		return "That code was not accepted. Try again."
	case errors.Is(err, auth.ErrProviderUnavailable):
		return "The sign-in service is unreachable. Try again."
	case errors.Is(err, auth.ErrProfileLookup):
		return "Your account has no resolvable role. Contact an administrator."
	case errors.Is(err, auth.ErrNotAwaitingChallenge), errors.Is(err, auth.ErrSuperseded):
		return ""
	default:
		return "Verification failed. Try again."
	}
}
