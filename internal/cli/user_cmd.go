// user_cmd.go - Local account management for air-gapped deployments.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/roster-tui/internal/config"
	"github.com/jeranaias/roster-tui/internal/identity"
)

// HandleUser dispatches `roster user add|enroll`. Both operate on the local
// user table and are refused in remote mode, where the identity service owns
// accounts.
func HandleUser(env *Env, args Args) int {
	if env.Local == nil {
		fmt.Fprintln(os.Stderr, "Error: local accounts require provider.mode = local")
		fmt.Fprintln(os.Stderr, "Run: roster config set provider.mode local")
		return 1
	}

	switch args.Subcommand {
	case "add":
		return userAdd(env, args)
	case "enroll":
		return userEnroll(env, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown user subcommand: %s\n", args.Subcommand)
		fmt.Fprintln(os.Stderr, "Usage: roster user add <username> [--role viewer|manager|admin]")
		fmt.Fprintln(os.Stderr, "       roster user enroll <username>")
		return 1
	}
}

// userAdd enrolls a new local account, prompting for the password.
func userAdd(env *Env, args Args) int {
	username := strings.TrimSpace(args.Username)
	if username == "" {
		fmt.Fprintln(os.Stderr, "Usage: roster user add <username> [--role viewer|manager|admin]")
		return 1
	}

	role := identity.Role(args.Role)
	if args.Role == "" {
		role = identity.RoleViewer
	}
	if !role.Valid() {
		fmt.Fprintf(os.Stderr, "Error: invalid role %q (want viewer, manager, or admin)\n", args.Role)
		return 1
	}

	fmt.Print("Display name: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read display name: %v\n", err)
		return 1
	}
	displayName := strings.TrimSpace(line)
	if displayName == "" {
		displayName = username
	}

	secret, err := readSecret("Password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read password: %v\n", err)
		return 1
	}
	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read password: %v\n", err)
		return 1
	}
	if secret != confirm {
		fmt.Fprintln(os.Stderr, "Error: passwords do not match")
		return 1
	}

	principal := identity.Principal{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Role:        role,
	}
	if err := env.Local.AddUser(principal, secret, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not add user: %v\n", err)
		return 1
	}

	fmt.Printf("Added %s (%s).\n", username, role)
	fmt.Println("Run `roster user enroll " + username + "` to require a second factor.")
	return 0
}

// userEnroll issues a TOTP secret for an existing local account.
func userEnroll(env *Env, args Args) int {
	username := strings.TrimSpace(args.Username)
	if username == "" {
		fmt.Fprintln(os.Stderr, "Usage: roster user enroll <username>")
		return 1
	}

	issuer := config.Get().Provider.TOTPIssuer
	secret, err := env.Local.EnrollTOTP(issuer, username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not enroll: %v\n", err)
		return 1
	}

	fmt.Printf("TOTP secret for %s (issuer %q):\n\n  %s\n\n", username, issuer, secret)
	fmt.Println("Add it to an authenticator app. Sign-ins now require the 6-digit code.")
	return 0
}
