// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the roster TUI.
package styles

import "github.com/muesli/termenv"

// Theme captures the terminal's rendering capabilities.
type Theme struct {
	ColorProfile termenv.Profile
	HasTrueColor bool
	IsDark       bool
}

// DetectTheme probes the terminal. The "dark"/"light" config values force
// the background; "auto" trusts termenv.
func DetectTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	isDark := termenv.HasDarkBackground()
	switch mode {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}

	return &Theme{
		ColorProfile: profile,
		HasTrueColor: profile == termenv.TrueColor,
		IsDark:       isDark,
	}
}
