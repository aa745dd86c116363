// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/roster-tui/internal/ui/styles"
)

// ExpiredOverlay renders the session-expired notice shown after an idle
// timeout. It is display-only; keystroke handling lives in the root model.
type ExpiredOverlay struct {
	width  int
	height int
}

// SetSize records the terminal dimensions for centering.
func (o *ExpiredOverlay) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// View renders the notice centered on screen.
func (o ExpiredOverlay) View() string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Amber).
		Padding(1, 3).
		Render(
			styles.WarningStyle.Render("Session expired") + "\n\n" +
				"You were signed out after a period of inactivity." + "\n" +
				styles.HintStyle.Render("press any key to continue"),
		)

	if o.width == 0 || o.height == 0 {
		return box
	}
	return lipgloss.Place(o.width, o.height, lipgloss.Center, lipgloss.Center, box)
}
