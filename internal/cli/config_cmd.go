// config_cmd.go - Configuration show/set commands for roster.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jeranaias/roster-tui/internal/config"
	"github.com/jeranaias/roster-tui/internal/storage"
	"github.com/jeranaias/roster-tui/internal/throttle"
)

// HandleConfig dispatches `roster config [show|set|path]`.
func HandleConfig(args Args) int {
	switch args.Subcommand {
	case "", "show":
		return configShow()
	case "set":
		return configSet(args.ConfigKey, args.ConfigVal)
	case "path":
		path, err := config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(path)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args.Subcommand)
		fmt.Fprintln(os.Stderr, "Usage: roster config [show|set <key> <value>|path]")
		return 1
	}
}

func configShow() int {
	cfg := config.Get()

	fmt.Println("Configuration:")
	fmt.Printf("  provider.mode               %s\n", cfg.Provider.Mode)
	fmt.Printf("  provider.base_url           %s\n", cfg.Provider.BaseURL)
	fmt.Printf("  provider.timeout_secs       %d\n", cfg.Provider.TimeoutSecs)
	fmt.Printf("  provider.totp_issuer        %s\n", cfg.Provider.TOTPIssuer)
	fmt.Printf("  directory.base_url          %s\n", cfg.Directory.BaseURL)
	fmt.Printf("  directory.page_size         %d\n", cfg.Directory.PageSize)
	fmt.Printf("  security.idle_timeout_secs  %d\n", cfg.Security.IdleTimeoutSecs)
	fmt.Printf("  security.refresh_interval_secs %d\n", cfg.Security.RefreshIntervalSecs)
	fmt.Printf("  security.audit_enabled      %t\n", cfg.Security.AuditEnabled)
	fmt.Printf("  ui.throttle_level           %s\n", cfg.UI.ThrottleLevel)
	fmt.Printf("  ui.theme                    %s\n", cfg.UI.Theme)
	return 0
}

func configSet(key, value string) int {
	if key == "" || value == "" {
		fmt.Fprintln(os.Stderr, "Usage: roster config set <key> <value>")
		return 1
	}

	cfg := config.Get()

	switch key {
	case "provider.mode":
		if value != config.ProviderModeRemote && value != config.ProviderModeLocal {
			fmt.Fprintf(os.Stderr, "Error: %s must be %q or %q\n", key, config.ProviderModeRemote, config.ProviderModeLocal)
			return 1
		}
		cfg.Provider.Mode = value
	case "provider.base_url":
		cfg.Provider.BaseURL = value
	case "provider.timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Error: %s must be a positive integer\n", key)
			return 1
		}
		cfg.Provider.TimeoutSecs = n
	case "provider.totp_issuer":
		cfg.Provider.TOTPIssuer = value
	case "directory.base_url":
		cfg.Directory.BaseURL = value
	case "directory.page_size":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Error: %s must be a positive integer\n", key)
			return 1
		}
		cfg.Directory.PageSize = n
	case "security.idle_timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s must be an integer\n", key)
			return 1
		}
		cfg.Security.IdleTimeoutSecs = n
	case "security.refresh_interval_secs":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Error: %s must be a positive integer\n", key)
			return 1
		}
		cfg.Security.RefreshIntervalSecs = n
	case "security.audit_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s must be true or false\n", key)
			return 1
		}
		cfg.Security.AuditEnabled = b
	case "ui.throttle_level":
		level, err := throttle.ParseLevel(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg.UI.ThrottleLevel = value
		// The running level is restored from the durable store, so the
		// store copy has to move with the config copy.
		if err := persistThrottleLevel(level); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	case "ui.theme":
		cfg.UI.Theme = value
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not save config: %v\n", err)
		return 1
	}

	fmt.Printf("Set %s = %s\n", key, value)
	return 0
}

// persistThrottleLevel writes the level through the provider so a running
// or future roster process picks it up from the store.
func persistThrottleLevel(level throttle.Level) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	store, err := storage.Open(filepath.Join(dir, "store.db"))
	if err != nil {
		return fmt.Errorf("could not open store: %w", err)
	}
	defer store.Close()

	return throttle.NewProvider(store, level).SetLevel(level)
}
