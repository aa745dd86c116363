// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the terminal interface for the roster client.
package ui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/ui/styles"
)

// loginResultMsg carries the outcome of a login attempt.
type loginResultMsg struct {
	outcome auth.LoginOutcome
	err     error
}

// LoginModel is the primary credential form.
type LoginModel struct {
	orch *auth.Orchestrator

	identifier textinput.Model
	secret     textinput.Model
	focusIdx   int
	submitting bool
	errMsg     string
}

// NewLoginModel creates the login form.
func NewLoginModel(orch *auth.Orchestrator) LoginModel {
	id := textinput.New()
	id.Placeholder = "username or email"
	id.CharLimit = 128
	id.Width = 40
	id.Prompt = "> "
	id.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	id.Focus()

	secret := textinput.New()
	secret.Placeholder = "password"
	secret.CharLimit = 256
	secret.Width = 40
	secret.Prompt = "> "
	secret.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	secret.EchoMode = textinput.EchoPassword
	secret.EchoCharacter = '•'

	return LoginModel{orch: orch, identifier: id, secret: secret}
}

// Reset clears the form for a fresh login.
func (m *LoginModel) Reset() {
	m.identifier.SetValue("")
	m.secret.SetValue("")
	m.focusIdx = 0
	m.identifier.Focus()
	m.secret.Blur()
	m.submitting = false
	m.errMsg = ""
}

// Update handles messages for the login form.
func (m LoginModel) Update(msg tea.Msg) (LoginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.submitting {
			// An attempt is in flight; keystrokes only edit after it lands.
			return m, nil
		}
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			m.focusIdx = (m.focusIdx + 1) % 2
			if m.focusIdx == 0 {
				m.identifier.Focus()
				m.secret.Blur()
			} else {
				m.identifier.Blur()
				m.secret.Focus()
			}
			return m, nil
		case "enter":
			m.submitting = true
			m.errMsg = ""
			return m, m.submit()
		}

	case loginResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.errMsg = loginErrorText(msg.err)
			m.secret.SetValue("")
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusIdx == 0 {
		m.identifier, cmd = m.identifier.Update(msg)
	} else {
		m.secret, cmd = m.secret.Update(msg)
	}
	return m, cmd
}

// submit runs the credential check off the UI loop.
func (m LoginModel) submit() tea.Cmd {
	identifier := m.identifier.Value()
	secret := m.secret.Value()
	orch := m.orch
	return func() tea.Msg {
		outcome, err := orch.Login(context.Background(), identifier, secret)
		return loginResultMsg{outcome: outcome, err: err}
	}
}

// View renders the form.
func (m LoginModel) View() string {
	body := styles.TitleStyle.Render("roster — sign in") + "\n\n" +
		styles.LabelStyle.Render("Identifier") + "\n" + m.identifier.View() + "\n\n" +
		styles.LabelStyle.Render("Password") + "\n" + m.secret.View() + "\n"

	if m.submitting {
		body += "\n" + styles.HintStyle.Render("Signing in…")
	} else if m.errMsg != "" {
		body += "\n" + styles.ErrorStyle.Render(m.errMsg)
	}

	body += "\n\n" + styles.HintStyle.Render("tab: switch field • enter: sign in • ctrl+c: quit")
	return styles.BoxStyle.Render(body)
}

// loginErrorText maps the error taxonomy onto user-facing text. Only
// rejections and validation failures name a cause; infrastructure detail
// stays in the logs.
func loginErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return "Enter both an identifier and a password."
	case errors.Is(err, auth.ErrRejectedCredentials):
		return "Sign-in refused. Check your identifier and password."
	case errors.Is(err, auth.ErrProfileLookup):
		return "Your account has no resolvable role. Contact an administrator."
	case errors.Is(err, auth.ErrProviderUnavailable):
		return "The sign-in service is unreachable. Try again."
	case errors.Is(err, auth.ErrSuperseded):
		return ""
	default:
		return "Sign-in failed. Try again."
	}
}
