// auth_cmd.go - Terminal sign-in and sign-out for roster.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/identity"
)

// Env carries the wired components the command handlers operate on.
type Env struct {
	Orch *auth.Orchestrator

	// Local is the local user table, set only when provider.mode = local.
	Local *identity.LocalProvider
}

// HandleLogin signs in from the terminal, prompting for whatever the
// provider still needs (secret, then a second-factor code if required).
func HandleLogin(env *Env, args Args) int {
	if env.Orch.IsAuthenticated() {
		if p, ok := env.Orch.Principal(); ok {
			fmt.Printf("Already signed in as %s. Run `roster logout` first.\n", p.Username)
		}
		return 0
	}

	username := strings.TrimSpace(args.Username)
	if username == "" {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not read username: %v\n", err)
			return 1
		}
		username = strings.TrimSpace(line)
	}

	secret, err := readSecret("Password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read password: %v\n", err)
		return 1
	}

	outcome, err := env.Orch.Login(context.Background(), username, secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", loginFailureText(err))
		return 1
	}

	if outcome == auth.LoginSecondFactorRequired {
		if code := promptSecondFactor(env); code != 0 {
			return code
		}
	}

	if p, ok := env.Orch.Principal(); ok {
		fmt.Printf("Signed in as %s (%s).\n", p.Username, p.Role)
	}
	return 0
}

// promptSecondFactor loops on code entry until success, a hard failure,
// or the user gives up with an empty line.
func promptSecondFactor(env *Env) int {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("Second factor required. Enter the %d-digit code (blank to cancel): ", auth.CodeLength)
		line, err := reader.ReadString('\n')
		if err != nil {
			env.Orch.CancelSecondFactor()
			fmt.Fprintf(os.Stderr, "Error: could not read code: %v\n", err)
			return 1
		}
		code := strings.TrimSpace(line)
		if code == "" {
			env.Orch.CancelSecondFactor()
			fmt.Println("Sign-in cancelled.")
			return 1
		}

		ok, err := env.Orch.VerifySecondFactor(context.Background(), code)
		if ok {
			return 0
		}
		switch {
		case errors.Is(err, auth.ErrValidation):
			fmt.Printf("The code must be exactly %d digits.\n", auth.CodeLength)
		case errors.Is(err, auth.ErrRejectedCode):
			fmt.Println("That code was not accepted.")
			if challenge := env.Orch.Challenge(); challenge != nil {
				challenge.Reset()
			}
		case errors.Is(err, auth.ErrProviderUnavailable):
			fmt.Println("The sign-in service is unreachable. Try again.")
		default:
			fmt.Fprintf(os.Stderr, "Error: verification failed: %v\n", err)
			return 1
		}
	}
}

// HandleLogout clears the session locally and best-effort revokes it.
func HandleLogout(env *Env, args Args) int {
	if !env.Orch.IsAuthenticated() {
		fmt.Println("No active session.")
		return 0
	}
	env.Orch.Logout()
	fmt.Println("Signed out.")
	return 0
}

// readSecret reads a password without echo when attached to a terminal,
// falling back to a plain line read for piped input.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// loginFailureText maps sign-in errors onto terminal output.
func loginFailureText(err error) string {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return "username and password are both required"
	case errors.Is(err, auth.ErrRejectedCredentials):
		return "the username or password was not accepted"
	case errors.Is(err, auth.ErrProviderUnavailable):
		return "the sign-in service is unreachable"
	default:
		return err.Error()
	}
}
