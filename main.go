// roster - A terminal client for the personnel directory.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/cli"
	"github.com/jeranaias/roster-tui/internal/config"
	"github.com/jeranaias/roster-tui/internal/directory"
	"github.com/jeranaias/roster-tui/internal/identity"
	"github.com/jeranaias/roster-tui/internal/storage"
	"github.com/jeranaias/roster-tui/internal/throttle"
	"github.com/jeranaias/roster-tui/internal/ui"
	"github.com/jeranaias/roster-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
		return
	case cli.CmdHelp:
		cli.PrintUsage()
		return
	case cli.CmdConfig:
		os.Exit(cli.HandleConfig(args))
	}

	app, err := wire()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	env := &cli.Env{Orch: app.orch, Local: app.local}

	switch cmd {
	case cli.CmdTUI:
		if err := runTUI(app); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdLogin:
		os.Exit(cli.HandleLogin(env, args))
	case cli.CmdLogout:
		os.Exit(cli.HandleLogout(env, args))
	case cli.CmdStatus:
		os.Exit(cli.HandleStatus(env, args))
	case cli.CmdUser:
		os.Exit(cli.HandleUser(env, args))
	}
}

// wired holds the long-lived components behind every command.
type wired struct {
	cfg     *config.Config
	store   *storage.Store
	audit   *auth.AuditLogger
	orch    *auth.Orchestrator
	local   *identity.LocalProvider // nil in remote mode
	watcher *storage.Watcher
	dir     *directory.Client
	tp      *throttle.Provider
}

// wire loads config, opens storage, and assembles the auth lifecycle.
// A session left by a previous run is restored before returning.
func wire() (*wired, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.Set(cfg)

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	store, err := storage.Open(filepath.Join(dir, "store.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	auditPath := cfg.Security.AuditLogPath
	if auditPath == "" {
		auditPath = filepath.Join(dir, "audit.log")
	}
	audit, err := auth.NewAuditLogger(auditPath, cfg.Security.AuditEnabled)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	var provider auth.Provider
	var local *identity.LocalProvider
	if cfg.Provider.Mode == config.ProviderModeLocal {
		local, err = identity.OpenLocalProvider(store)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open local provider: %w", err)
		}
		provider = local
	} else {
		provider = identity.NewClient(cfg.Provider.BaseURL,
			identity.WithTimeout(cfg.RequestTimeout()))
	}

	sessions := auth.NewSessionStore(store, filepath.Join(dir, "store.key"))
	orch := auth.NewOrchestrator(provider, sessions, audit,
		cfg.IdleTimeout(), cfg.RefreshInterval())
	orch.Restore()

	// Another roster process signing out converges this one. The watcher
	// is best-effort; a missing inotify backend should not block sign-in.
	watcher, err := storage.NewWatcher(store, storage.DefaultWatchDebounce, orch.Reconcile)
	if err == nil {
		if err := watcher.Watch(); err != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}

	level, err := throttle.ParseLevel(cfg.UI.ThrottleLevel)
	if err != nil {
		level = throttle.LevelMedium
	}

	return &wired{
		cfg:     cfg,
		store:   store,
		audit:   audit,
		orch:    orch,
		local:   local,
		watcher: watcher,
		dir:     directory.NewClient(cfg.Directory.BaseURL),
		tp:      throttle.NewProvider(store, level),
	}, nil
}

func (w *wired) close() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.audit.Close()
	w.store.Close()
}

// runTUI starts the bubbletea program with orchestrator events wired in.
func runTUI(app *wired) error {
	theme := styles.DetectTheme(app.cfg.UI.Theme)
	lipgloss.SetHasDarkBackground(theme.IsDark)

	root := ui.NewApp(app.orch, app.dir, app.tp, app.cfg.Directory.PageSize)
	program := tea.NewProgram(root, tea.WithAltScreen(), tea.WithMouseCellMotion())

	ui.SetProgram(program)
	app.orch.SetNotifier(ui.Notify)
	defer app.orch.SetNotifier(nil)

	_, err := program.Run()
	return err
}
