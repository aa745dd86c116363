// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/directory"
	"github.com/jeranaias/roster-tui/internal/throttle"
)

// === PROGRAM WIRING ===

// authEventMsg delivers orchestrator events into the update loop.
type authEventMsg struct {
	event auth.Event
}

var (
	programMu  sync.Mutex
	programRef *tea.Program
)

// SetProgram registers the running program so background goroutines can
// inject messages.
func SetProgram(p *tea.Program) {
	programMu.Lock()
	defer programMu.Unlock()
	programRef = p
}

// Notify forwards an orchestrator event to the UI loop. Safe to call from
// any goroutine, and a no-op before the program starts.
func Notify(event auth.Event) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(authEventMsg{event: event})
	}
}

// === ROOT MODEL ===

// App is the root model. It routes between the login, second-factor, and
// roster views based on the orchestrator's state, and overlays the
// session-expired notice when one is pending.
type App struct {
	orch *auth.Orchestrator

	login     LoginModel
	challenge ChallengeModel
	roster    RosterModel
	expired   ExpiredOverlay

	state  auth.State
	width  int
	height int
}

// NewApp creates the root model.
func NewApp(orch *auth.Orchestrator, dir *directory.Client, tp *throttle.Provider, pageSize int) App {
	return App{
		orch:      orch,
		login:     NewLoginModel(orch),
		challenge: NewChallengeModel(orch),
		roster:    NewRosterModel(orch, dir, tp, pageSize),
		state:     orch.State(),
	}
}

// Init starts the view matching the restored state.
func (a App) Init() tea.Cmd {
	if a.state == auth.StateAuthenticated {
		return tea.Batch(a.roster.Start(), tea.EnterAltScreen)
	}
	return tea.EnterAltScreen
}

// Update handles messages for the whole application.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Resize is ambient, not user activity.
		a.width = msg.Width
		a.height = msg.Height
		a.roster.SetSize(msg.Width, msg.Height)
		a.expired.SetSize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		a.orch.Touch()

		if a.orch.ExpiredNoticeVisible() {
			a.orch.DismissExpiredNotice()
			return a.syncState(nil)
		}

		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "ctrl+l":
			if a.state == auth.StateAuthenticated {
				a.orch.Logout()
				return a.syncState(nil)
			}
		case "q":
			if a.state == auth.StateAuthenticated && !a.roster.SearchFocused() {
				return a, tea.Quit
			}
		}

	case tea.MouseMsg:
		a.orch.Touch()

	case authEventMsg:
		return a.syncState(nil)
	}

	var cmd tea.Cmd
	switch a.state {
	case auth.StateUnauthenticated:
		a.login, cmd = a.login.Update(msg)
	case auth.StateAwaitingSecondFactor:
		a.challenge, cmd = a.challenge.Update(msg)
	case auth.StateAuthenticated:
		a.roster, cmd = a.roster.Update(msg)
	}
	return a.syncState(cmd)
}

// syncState reconciles the active view with the orchestrator after any
// message that may have moved the state machine.
func (a App) syncState(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	current := a.orch.State()
	if current == a.state {
		return a, cmd
	}
	a.state = current

	var start tea.Cmd
	switch current {
	case auth.StateUnauthenticated:
		a.login.Reset()
	case auth.StateAwaitingSecondFactor:
		start = a.challenge.Start()
	case auth.StateAuthenticated:
		start = a.roster.Start()
	}
	return a, tea.Batch(cmd, start)
}

// View renders the active view, with the expired notice on top when set.
func (a App) View() string {
	if a.orch.ExpiredNoticeVisible() {
		return a.expired.View()
	}
	switch a.state {
	case auth.StateAwaitingSecondFactor:
		return a.challenge.View()
	case auth.StateAuthenticated:
		return a.roster.View()
	default:
		return a.login.View()
	}
}
