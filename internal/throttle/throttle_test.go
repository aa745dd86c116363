// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package throttle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/roster-tui/internal/storage"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  Level
		valid bool
	}{
		{"low", LevelLow, true},
		{"medium", LevelMedium, true},
		{"high", LevelHigh, true},
		{"", "", false},
		{"Low", "", false},
		{"extreme", "", false},
	}

	for _, tc := range tests {
		level, err := ParseLevel(tc.in)
		if tc.valid {
			require.NoError(t, err)
			require.Equal(t, tc.want, level)
		} else {
			require.Error(t, err)
		}
	}
}

func TestSetLevelRejectsInvalid(t *testing.T) {
	p := NewProvider(nil, LevelMedium)
	require.Error(t, p.SetLevel("turbo"))
	require.Equal(t, LevelMedium, p.Level())
}

func TestLevelPersistsAcrossProviders(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer store.Close()

	p := NewProvider(store, LevelMedium)
	require.NoError(t, p.SetLevel(LevelHigh))

	// A fresh provider over the same store restores the saved level.
	restored := NewProvider(store, LevelMedium)
	require.Equal(t, LevelHigh, restored.Level())
}

func TestCorruptPersistedLevelFallsBack(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("throttle.level", "warp"))
	p := NewProvider(store, LevelMedium)
	require.Equal(t, LevelMedium, p.Level())
}

func TestWrapLowPassesEverything(t *testing.T) {
	p := NewProvider(nil, LevelLow)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, 100*time.Millisecond)
	for i := 0; i < 10; i++ {
		wrapped()
	}
	require.Equal(t, 10, calls)
}

func TestWrapZeroIntervalPassesEverything(t *testing.T) {
	p := NewProvider(nil, LevelHigh)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, 0)
	for i := 0; i < 5; i++ {
		wrapped()
	}
	require.Equal(t, 5, calls)
}

func TestWrapMediumDropsBurst(t *testing.T) {
	p := NewProvider(nil, LevelMedium)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, time.Minute)

	// First call passes; the burst behind it is dropped, not queued.
	for i := 0; i < 10; i++ {
		wrapped()
	}
	require.Equal(t, 1, calls)
}

func TestWrapMediumAllowsAfterInterval(t *testing.T) {
	p := NewProvider(nil, LevelMedium)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, 20*time.Millisecond)

	wrapped()
	wrapped() // dropped
	require.Equal(t, 1, calls)

	time.Sleep(30 * time.Millisecond)
	wrapped()
	require.Equal(t, 2, calls)
}

func TestWrapHighStretchesInterval(t *testing.T) {
	p := NewProvider(nil, LevelHigh)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, 30*time.Millisecond)

	wrapped()
	require.Equal(t, 1, calls)

	// Past the base interval but inside the doubled one: still dropped.
	time.Sleep(40 * time.Millisecond)
	wrapped()
	require.Equal(t, 1, calls)

	time.Sleep(40 * time.Millisecond)
	wrapped()
	require.Equal(t, 2, calls)
}

func TestWrapCapturesLevelAtWrapTime(t *testing.T) {
	p := NewProvider(nil, LevelLow)

	calls := 0
	wrapped := p.Wrap(func() { calls++ }, time.Minute)

	// Raising the level later does not affect the already-wrapped fn.
	require.NoError(t, p.SetLevel(LevelHigh))
	for i := 0; i < 5; i++ {
		wrapped()
	}
	require.Equal(t, 5, calls)

	// A fn wrapped after the change carries the new policy.
	after := 0
	gated := p.Wrap(func() { after++ }, time.Minute)
	gated()
	gated()
	require.Equal(t, 1, after)
}
