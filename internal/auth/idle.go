// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"sync"
	"time"
)

// idleTimer is the handle the monitor keeps on a scheduled expiry.
type idleTimer interface {
	Stop() bool
}

// timerFactory schedules fn after d. Tests substitute a manual scheduler so
// expiry is exercised without wall-clock waits.
type timerFactory func(d time.Duration, fn func()) idleTimer

func realTimer(d time.Duration, fn func()) idleTimer {
	return time.AfterFunc(d, fn)
}

// IdleMonitor raises a forced-logout callback after a configurable period of
// inactivity. It is armed on entering the authenticated state and emits at
// most one expiry per armed period; after firing it is inert until re-armed.
//
// Qualifying activity (key input, pointer movement, navigation) resets the
// countdown through Touch. Programmatic re-renders must not call Touch.
type IdleMonitor struct {
	budget   time.Duration
	newTimer timerFactory

	mu    sync.Mutex
	armed bool
	gen   uint64 // invalidates callbacks from stopped timers
	timer idleTimer

	onExpired func()
}

// NewIdleMonitor creates a monitor with the given inactivity budget.
func NewIdleMonitor(budget time.Duration) *IdleMonitor {
	return &IdleMonitor{budget: budget, newTimer: realTimer}
}

// Start arms the monitor. onExpired runs once when the budget elapses with
// no activity; the orchestrator's handler performs session cleanup before
// any consumer can observe an authenticated state again. Restarting an armed
// monitor resets the countdown.
func (m *IdleMonitor) Start(onExpired func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.armed = true
	m.onExpired = onExpired
	m.armLocked()
}

// Touch resets the idle countdown. Ignored when the monitor is not armed, so
// a stray activity signal after expiry cannot resurrect the timer.
func (m *IdleMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return
	}
	m.stopTimerLocked()
	m.armLocked()
}

// Stop disarms the monitor. Idempotent; a stopped timer's pending callback
// is invalidated, not merely ignored at the UI layer.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Armed reports whether the monitor is counting down.
func (m *IdleMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Budget returns the configured inactivity budget.
func (m *IdleMonitor) Budget() time.Duration {
	return m.budget
}

// armLocked schedules the expiry timer under the current generation.
func (m *IdleMonitor) armLocked() {
	gen := m.gen
	m.timer = m.newTimer(m.budget, func() {
		m.expire(gen)
	})
}

// stopLocked disarms and invalidates any scheduled callback.
func (m *IdleMonitor) stopLocked() {
	m.armed = false
	m.onExpired = nil
	m.stopTimerLocked()
}

func (m *IdleMonitor) stopTimerLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expire runs on the timer goroutine. A generation mismatch means the timer
// was reset or stopped after this callback was scheduled; the late firing
// must not act.
func (m *IdleMonitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.armed {
		m.mu.Unlock()
		return
	}
	callback := m.onExpired
	m.stopLocked()
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}
