// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the roster TUI.
package styles

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func TestDetectThemeForcedModes(t *testing.T) {
	dark := DetectTheme("dark")
	require.True(t, dark.IsDark)

	light := DetectTheme("light")
	require.False(t, light.IsDark)
}

func TestDetectThemeAutoProbesTerminal(t *testing.T) {
	theme := DetectTheme("auto")
	require.NotNil(t, theme)
	// Whatever the terminal reports, the flag must agree with the profile.
	require.Equal(t, theme.ColorProfile == termenv.TrueColor, theme.HasTrueColor)
}

func TestSharedStylesRender(t *testing.T) {
	for name, rendered := range map[string]string{
		"title":   TitleStyle.Render("x"),
		"error":   ErrorStyle.Render("x"),
		"warning": WarningStyle.Render("x"),
		"label":   LabelStyle.Render("x"),
		"hint":    HintStyle.Render("x"),
		"box":     BoxStyle.Render("x"),
	} {
		require.NotEmpty(t, rendered, name)
	}
}
