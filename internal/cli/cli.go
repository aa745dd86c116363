// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for roster.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdLogout
	CmdStatus
	CmdConfig
	CmdUser
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool

	// Command-specific
	Username   string
	Role       string
	ConfigKey  string
	ConfigVal  string
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `roster - personnel directory client

Roster is a terminal client for browsing the personnel directory.
All views are gated behind the organization's sign-in service.

Usage:
  roster                     Start TUI (default)
  roster login [--user NAME] Sign in from the terminal
  roster logout              Clear the stored session
  roster status, s           Show session and connectivity status
  roster config [show|set]   Configuration
  roster user add NAME       Enroll a local account (local mode only)
  roster user enroll NAME    Issue a TOTP secret for NAME (local mode only)
  roster version             Show version information

Config keys:
  provider.mode              Authentication backend (remote, local)
  provider.base_url          Sign-in service URL
  provider.totp_issuer       Issuer name on locally enrolled TOTP secrets
  directory.base_url         Directory service URL
  security.idle_timeout_secs Idle timeout (300-1800 seconds)
  ui.throttle_level          Request throttling (low, medium, high)
  ui.theme                   Color theme (auto, dark, light)

Global Flags:
  -q, --quiet     Minimal output
  -v, --verbose   Debug output

Examples:
  roster                              Start the TUI
  roster login --user jdoe            Sign in as jdoe
  roster status                       Check whether a session is active
  roster config show                  Show current configuration
  roster config set ui.throttle_level high
  roster logout                       Sign out and clear stored state

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("roster version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	args := os.Args[1:]

	remaining, parsedArgs := parseGlobalFlags(args)

	// No remaining args means the TUI.
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "login", "signin":
		parser := NewArgParser(remaining)
		parsedArgs.Username = parser.Flag("user")
		if parsedArgs.Username == "" {
			parsedArgs.Username = parser.Positional(0)
		}
		return CmdLogin, parsedArgs

	case "logout", "signout":
		return CmdLogout, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "config":
		parser := NewArgParser(remaining)
		parsedArgs.Subcommand = parser.Subcommand()
		parsedArgs.ConfigKey = parser.Positional(1)
		parsedArgs.ConfigVal = parser.Positional(2)
		return CmdConfig, parsedArgs

	case "user":
		parser := NewArgParser(remaining)
		parsedArgs.Subcommand = parser.Subcommand()
		parsedArgs.Username = parser.Positional(1)
		parsedArgs.Role = parser.Flag("role")
		return CmdUser, parsedArgs

	case "version", "-V", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var parsed Args
	remaining := make([]string, 0, len(args))

	for _, arg := range args {
		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsed
}
