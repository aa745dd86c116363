// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package throttle rate-limits repeated UI operations.
//
// Expensive operations driven by high-frequency input (search-as-you-type,
// scroll-driven refresh) are wrapped with a minimum re-invocation interval.
// Calls arriving before the interval has elapsed are dropped, not queued or
// delayed; callers must tolerate missed invocations.
//
// The aggressiveness is a single process-wide level, persisted in the
// durable store so it survives restarts.
package throttle

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/roster-tui/internal/storage"
)

// Level is the coarse throttling setting.
type Level string

const (
	// LevelLow disables throttling entirely; every call passes through.
	LevelLow Level = "low"
	// LevelMedium enforces the caller's interval as given.
	LevelMedium Level = "medium"
	// LevelHigh doubles the caller's interval.
	LevelHigh Level = "high"
)

// highMultiplier scales intervals at LevelHigh.
const highMultiplier = 2

// storeKey is the durable store key for the persisted level.
const storeKey = "throttle.level"

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelLow, LevelMedium, LevelHigh:
		return Level(s), nil
	}
	return "", fmt.Errorf("invalid throttle level %q (want low, medium, or high)", s)
}

// Provider is the process-wide throttle policy. Any number of call sites
// read it; mutation goes through SetLevel only.
type Provider struct {
	store *storage.Store

	mu    sync.RWMutex
	level Level
}

// NewProvider creates a provider, restoring the persisted level when one
// exists; otherwise fallback is used. store may be nil (tests).
func NewProvider(store *storage.Store, fallback Level) *Provider {
	p := &Provider{store: store, level: fallback}
	if store != nil {
		if raw, ok, _ := store.Get(storeKey); ok {
			if level, err := ParseLevel(raw); err == nil {
				p.level = level
			}
		}
	}
	return p
}

// Level returns the current level.
func (p *Provider) Level() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// SetLevel changes and persists the level. Takes effect for operations
// wrapped afterwards; operations already wrapped keep the policy they were
// built with.
func (p *Provider) SetLevel(level Level) error {
	if _, err := ParseLevel(string(level)); err != nil {
		return err
	}

	p.mu.Lock()
	p.level = level
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Set(storeKey, string(level)); err != nil {
			return fmt.Errorf("failed to persist throttle level: %w", err)
		}
	}
	return nil
}

// Wrap returns fn gated by minInterval under the level current at wrap time.
// Dropped calls simply do not run.
func (p *Provider) Wrap(fn func(), minInterval time.Duration) func() {
	level := p.Level()
	if level == LevelLow || minInterval <= 0 {
		return fn
	}

	if level == LevelHigh {
		minInterval *= highMultiplier
	}

	// Burst 1: the first call passes, then one call per interval. Allow
	// drops rather than waits.
	limiter := rate.NewLimiter(rate.Every(minInterval), 1)
	return func() {
		if limiter.Allow() {
			fn()
		}
	}
}
