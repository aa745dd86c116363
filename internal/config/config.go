// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for roster.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.roster/config.toml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/roster-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete roster configuration.
type Config struct {
	Version string `toml:"version"`

	// Provider is the identity provider configuration.
	Provider ProviderConfig `toml:"provider"`

	// Directory is the personnel directory service configuration.
	Directory DirectoryConfig `toml:"directory"`

	// Security holds session lifecycle settings.
	Security SecurityConfig `toml:"security"`

	// UI holds interface settings.
	UI UIConfig `toml:"ui"`
}

// Provider modes.
const (
	// ProviderModeRemote authenticates against the HTTP identity provider.
	ProviderModeRemote = "remote"
	// ProviderModeLocal authenticates against the user table enrolled on
	// this machine (air-gapped deployments).
	ProviderModeLocal = "local"
)

// ProviderConfig contains identity provider settings.
type ProviderConfig struct {
	// Mode selects the authentication backend: "remote" or "local".
	Mode string `toml:"mode"`
	// BaseURL is the identity provider endpoint. Ignored in local mode.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs is the per-request timeout in seconds.
	TimeoutSecs int `toml:"timeout_secs"`
	// TOTPIssuer is the issuer name used for locally enrolled TOTP secrets.
	TOTPIssuer string `toml:"totp_issuer"`
}

// DirectoryConfig contains personnel directory service settings.
type DirectoryConfig struct {
	// BaseURL is the directory service endpoint.
	BaseURL string `toml:"base_url"`
	// PageSize is the page size for employee listings.
	PageSize int `toml:"page_size"`
}

// SecurityConfig contains session lifecycle settings.
type SecurityConfig struct {
	// IdleTimeoutSecs is the inactivity budget before forced logout.
	// Valid range is 300-1800 seconds; values outside are clamped.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
	// RefreshIntervalSecs is the session revalidation interval.
	RefreshIntervalSecs int `toml:"refresh_interval_secs"`
	// AuditEnabled enables audit logging of authentication events.
	AuditEnabled bool `toml:"audit_enabled"`
	// AuditLogPath is the audit log file (empty = ~/.roster/audit.log).
	AuditLogPath string `toml:"audit_log_path"`
}

// UIConfig contains interface settings.
type UIConfig struct {
	// ThrottleLevel controls suppression of repeated UI operations:
	// "low", "medium", or "high". Persisted in the key-value store once
	// changed at runtime; this value seeds a fresh install.
	ThrottleLevel string `toml:"throttle_level"`
	// Theme selects the color theme: "auto", "dark", "light".
	Theme string `toml:"theme"`
}

// =============================================================================
// LIMITS AND DEFAULTS
// =============================================================================

const (
	// MinIdleTimeoutSecs is the minimum allowed idle budget (5 minutes).
	MinIdleTimeoutSecs = 300

	// MaxIdleTimeoutSecs is the maximum allowed idle budget (30 minutes).
	MaxIdleTimeoutSecs = 1800

	// DefaultIdleTimeoutSecs is the default idle budget (15 minutes).
	DefaultIdleTimeoutSecs = 900

	// DefaultRefreshIntervalSecs is the default session revalidation
	// interval (1 minute).
	DefaultRefreshIntervalSecs = 60

	// DefaultRequestTimeoutSecs is the default per-request timeout.
	DefaultRequestTimeoutSecs = 30
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Provider: ProviderConfig{
			Mode:        ProviderModeRemote,
			BaseURL:     "https://id.example.mil",
			TimeoutSecs: DefaultRequestTimeoutSecs,
			TOTPIssuer:  "roster",
		},
		Directory: DirectoryConfig{
			BaseURL:  "https://directory.example.mil",
			PageSize: 50,
		},
		Security: SecurityConfig{
			IdleTimeoutSecs:     DefaultIdleTimeoutSecs,
			RefreshIntervalSecs: DefaultRefreshIntervalSecs,
			AuditEnabled:        true,
		},
		UI: UIConfig{
			ThrottleLevel: "medium",
			Theme:         "auto",
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

var (
	loadedConfig *Config
	loadOnce     sync.Once
	loadMu       sync.Mutex
)

// Dir returns the roster configuration directory (~/.roster).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".roster"), nil
}

// Path returns the configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration file, applies environment overrides, and
// validates the result. A missing file is not an error; defaults are used.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
// A load failure falls back to defaults; the error is surfaced once by main.
func Get() *Config {
	loadOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = DefaultConfig()
		}
		loadedConfig = cfg
	})

	loadMu.Lock()
	defer loadMu.Unlock()
	return loadedConfig
}

// Set replaces the process-wide configuration (used by tests and `config set`).
func Set(cfg *Config) {
	loadOnce.Do(func() {})
	loadMu.Lock()
	defer loadMu.Unlock()
	loadedConfig = cfg
}

// Save writes the configuration atomically.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// applyEnvOverrides applies ROSTER_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROSTER_PROVIDER_MODE"); v != "" {
		cfg.Provider.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("ROSTER_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("ROSTER_DIRECTORY_URL"); v != "" {
		cfg.Directory.BaseURL = v
	}
	if v := os.Getenv("ROSTER_IDLE_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.IdleTimeoutSecs = n
		}
	}
	if v := os.Getenv("ROSTER_REFRESH_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.RefreshIntervalSecs = n
		}
	}
	if v := os.Getenv("ROSTER_THROTTLE_LEVEL"); v != "" {
		cfg.UI.ThrottleLevel = strings.ToLower(v)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// clamp forces correctable settings into their valid ranges.
func (c *Config) clamp() {
	if c.Provider.Mode == "" {
		c.Provider.Mode = ProviderModeRemote
	}
	if c.Security.IdleTimeoutSecs < MinIdleTimeoutSecs {
		c.Security.IdleTimeoutSecs = MinIdleTimeoutSecs
	}
	if c.Security.IdleTimeoutSecs > MaxIdleTimeoutSecs {
		c.Security.IdleTimeoutSecs = MaxIdleTimeoutSecs
	}
	if c.Security.RefreshIntervalSecs <= 0 {
		c.Security.RefreshIntervalSecs = DefaultRefreshIntervalSecs
	}
	if c.Provider.TimeoutSecs <= 0 {
		c.Provider.TimeoutSecs = DefaultRequestTimeoutSecs
	}
	if c.Directory.PageSize <= 0 {
		c.Directory.PageSize = 50
	}
}

// Validate checks settings that cannot be silently corrected.
func (c *Config) Validate() error {
	switch c.Provider.Mode {
	case ProviderModeRemote, ProviderModeLocal:
	default:
		return fmt.Errorf("invalid provider.mode: %q (want remote or local)", c.Provider.Mode)
	}

	urls := map[string]string{
		"directory.base_url": c.Directory.BaseURL,
	}
	// The provider endpoint only matters when it will be dialed.
	if c.Provider.Mode == ProviderModeRemote {
		urls["provider.base_url"] = c.Provider.BaseURL
	}
	for name, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	switch c.UI.ThrottleLevel {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid ui.throttle_level: %q (want low, medium, or high)", c.UI.ThrottleLevel)
	}

	return nil
}

// IdleTimeout returns the idle budget as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Security.IdleTimeoutSecs) * time.Second
}

// RefreshInterval returns the session revalidation interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Security.RefreshIntervalSecs) * time.Second
}

// RequestTimeout returns the provider request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}
