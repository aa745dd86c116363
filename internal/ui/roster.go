// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/directory"
	"github.com/jeranaias/roster-tui/internal/throttle"
	"github.com/jeranaias/roster-tui/internal/ui/styles"
)

// searchMinInterval is the floor between directory searches; the throttle
// provider stretches it on high-latency links.
const searchMinInterval = 300 * time.Millisecond

// refreshMinInterval floors explicit list refreshes.
const refreshMinInterval = 2 * time.Second

// rosterPageMsg carries a loaded directory page.
type rosterPageMsg struct {
	page *directory.Page
	err  error
}

// rosterQuery is shared by pointer between the model and its throttled
// triggers, so a trigger always fetches the latest query and offset.
type rosterQuery struct {
	query  string
	offset int
}

// RosterModel is the protected employee list shown once authenticated.
type RosterModel struct {
	orch     *auth.Orchestrator
	dir      *directory.Client
	throttle *throttle.Provider

	search   textinput.Model
	page     *directory.Page
	query    *rosterQuery
	pageSize int
	cursor   int
	loading  bool
	errMsg   string
	width    int
	height   int

	// requests is the inner dispatch the throttled wrappers close over.
	requests  chan func() tea.Msg
	doSearch  func()
	doRefresh func()
}

// NewRosterModel creates the employee list view.
func NewRosterModel(orch *auth.Orchestrator, dir *directory.Client, tp *throttle.Provider, pageSize int) RosterModel {
	search := textinput.New()
	search.Placeholder = "search by name or org"
	search.Prompt = "/ "
	search.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan)
	search.Width = 32

	query := &rosterQuery{}
	requests := make(chan func() tea.Msg, 1)
	enqueue := func() {
		token, ok := orch.Token()
		if !ok {
			return
		}
		q, offset := query.query, query.offset
		fetch := func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			page, err := dir.ListEmployees(ctx, token, q, offset, pageSize)
			return rosterPageMsg{page: page, err: err}
		}
		select {
		case requests <- fetch:
		default:
		}
	}

	return RosterModel{
		orch:     orch,
		dir:      dir,
		throttle: tp,
		search:   search,
		query:    query,
		pageSize: pageSize,
		requests: requests,
		// Wrapped once at construction so the limiter state survives
		// across Update calls. The wrapper enqueues; awaitRequest drains.
		doSearch:  tp.Wrap(enqueue, searchMinInterval),
		doRefresh: tp.Wrap(enqueue, refreshMinInterval),
	}
}

// Start issues the initial page load when the view becomes active.
func (m *RosterModel) Start() tea.Cmd {
	m.query.query = m.search.Value()
	m.query.offset = 0
	m.cursor = 0
	m.errMsg = ""
	return m.trigger(m.doRefresh)
}

// SetSize records the terminal dimensions.
func (m *RosterModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SearchFocused reports whether the search field is capturing keys.
func (m RosterModel) SearchFocused() bool {
	return m.search.Focused()
}

// awaitRequest runs the next queued fetch off the UI loop, or nothing if
// the throttle dropped the trigger.
func (m *RosterModel) awaitRequest() tea.Cmd {
	select {
	case fetch := <-m.requests:
		return fetch
	default:
		return nil
	}
}

// trigger fires a throttled trigger and drains the queue. The loading flag
// follows the dequeue, not the trigger: a dropped call produces no
// rosterPageMsg, so nothing would ever clear it.
func (m *RosterModel) trigger(do func()) tea.Cmd {
	do()
	cmd := m.awaitRequest()
	if cmd != nil {
		m.loading = true
	}
	return cmd
}

// Update handles messages for the employee list.
func (m RosterModel) Update(msg tea.Msg) (RosterModel, tea.Cmd) {
	switch msg := msg.(type) {
	case rosterPageMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = "directory unavailable"
			return m, nil
		}
		m.errMsg = ""
		m.page = msg.page
		if m.cursor >= len(msg.page.Items) {
			m.cursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		if m.search.Focused() {
			switch msg.String() {
			case "enter", "esc":
				m.search.Blur()
				if msg.String() == "enter" {
					m.query.query = m.search.Value()
					m.query.offset = 0
					return m, m.trigger(m.doSearch)
				}
				return m, nil
			}
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "/":
			m.search.Focus()
			return m, textinput.Blink
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.page != nil && m.cursor < len(m.page.Items)-1 {
				m.cursor++
			}
		case "right", "l", "pgdown":
			if m.page != nil && m.page.NextOffset > m.query.offset {
				m.query.offset = m.page.NextOffset
				return m, m.trigger(m.doSearch)
			}
		case "left", "h", "pgup":
			if m.query.offset > 0 {
				m.query.offset -= m.pageSize
				if m.query.offset < 0 {
					m.query.offset = 0
				}
				return m, m.trigger(m.doSearch)
			}
		case "r":
			return m, m.trigger(m.doRefresh)
		}
	}
	return m, nil
}

// View renders the employee table.
func (m RosterModel) View() string {
	var b strings.Builder

	title := "Roster"
	if p, ok := m.orch.Principal(); ok {
		title = fmt.Sprintf("Roster — %s (%s)", p.DisplayName, p.Role)
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	nameW, titleW, orgW := m.columnWidths()
	header := padCell("NAME", nameW) + padCell("TITLE", titleW) + padCell("ORG", orgW)
	b.WriteString(styles.LabelStyle.Render(header))
	b.WriteString("\n")

	switch {
	case m.loading && m.page == nil:
		b.WriteString(styles.HintStyle.Render("loading…"))
	case m.errMsg != "":
		b.WriteString(styles.ErrorStyle.Render(m.errMsg))
	case m.page == nil || len(m.page.Items) == 0:
		b.WriteString(styles.HintStyle.Render("no results"))
	default:
		for i, e := range m.page.Items {
			row := padCell(e.Name, nameW) + padCell(e.Title, titleW) + padCell(e.OrgUnit, orgW)
			if i == m.cursor {
				row = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true).Render("› " + row)
			} else {
				row = "  " + row
			}
			b.WriteString(row)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(styles.HintStyle.Render(fmt.Sprintf("%d-%d of %d", m.query.offset+1, m.query.offset+len(m.page.Items), m.page.Total)))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.HintStyle.Render("/: search • r: refresh • ←/→: page • q: quit • ctrl+l: sign out"))
	return b.String()
}

func (m RosterModel) columnWidths() (int, int, int) {
	total := m.width - 6
	if total < 48 {
		total = 72
	}
	nameW := total * 2 / 5
	titleW := total * 2 / 5
	orgW := total - nameW - titleW
	return nameW, titleW, orgW
}

// padCell truncates display-width-aware and pads to the column width, so
// wide runes in names do not shear the table.
func padCell(s string, width int) string {
	if width <= 1 {
		return " "
	}
	s = runewidth.Truncate(s, width-1, "…")
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}
