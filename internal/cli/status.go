// status.go - Session and connectivity status for roster.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/config"
)

// HandleStatus prints the session state and configured endpoints.
func HandleStatus(env *Env, args Args) int {
	cfg := config.Get()

	fmt.Println("roster status")
	fmt.Println()
	fmt.Printf("  Provider:   %s\n", cfg.Provider.BaseURL)
	fmt.Printf("  Directory:  %s\n", cfg.Directory.BaseURL)
	fmt.Printf("  Idle limit: %s\n", cfg.IdleTimeout())
	fmt.Println()

	switch env.Orch.State() {
	case auth.StateAuthenticated:
		if p, ok := env.Orch.Principal(); ok {
			fmt.Printf("  Session:    active as %s (%s)\n", p.Username, p.Role)
		} else {
			fmt.Println("  Session:    active")
		}
	case auth.StateAwaitingSecondFactor:
		fmt.Println("  Session:    sign-in pending second factor")
	default:
		fmt.Println("  Session:    not signed in")
	}
	return 0
}
