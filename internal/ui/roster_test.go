// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/roster-tui/internal/auth"
	"github.com/jeranaias/roster-tui/internal/directory"
	"github.com/jeranaias/roster-tui/internal/identity"
	"github.com/jeranaias/roster-tui/internal/storage"
	"github.com/jeranaias/roster-tui/internal/throttle"
)

// acceptingProvider signs anyone in without a second factor. The directory
// client is never dialed in these tests; commands are inspected, not run.
type acceptingProvider struct{}

func (acceptingProvider) SignIn(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
	return &identity.SignInResult{PrincipalID: "p-1", Role: identity.RoleViewer, Token: "sess_ui"}, nil
}

func (acceptingProvider) VerifyCode(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
	return nil, identity.ErrRejectedCode
}

func (acceptingProvider) SignOut(ctx context.Context, token string) error { return nil }

func (acceptingProvider) GetSession(ctx context.Context, token string) (*identity.SessionInfo, error) {
	return &identity.SessionInfo{Token: token}, nil
}

func (acceptingProvider) GetUser(ctx context.Context, token string) (*identity.Principal, error) {
	return &identity.Principal{ID: "p-1", Username: "jdoe", DisplayName: "J. Doe", Role: identity.RoleViewer}, nil
}

func newAuthenticatedRoster(t *testing.T) RosterModel {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := auth.NewSessionStore(store, filepath.Join(dir, "store.key"))
	audit, err := auth.NewAuditLogger("", false)
	require.NoError(t, err)
	orch := auth.NewOrchestrator(acceptingProvider{}, sessions, audit, time.Hour, time.Hour)
	t.Cleanup(orch.Logout)

	_, err = orch.Login(context.Background(), "jdoe", "pw")
	require.NoError(t, err)

	tp := throttle.NewProvider(nil, throttle.LevelMedium)
	return NewRosterModel(orch, directory.NewClient("https://directory.invalid"), tp, 25)
}

func TestRosterDroppedTriggerDoesNotStickLoading(t *testing.T) {
	m := newAuthenticatedRoster(t)

	// The first refresh passes the throttle and marks the view loading.
	cmd := m.Start()
	require.NotNil(t, cmd)
	require.True(t, m.loading)

	m, _ = m.Update(rosterPageMsg{page: &directory.Page{}})
	require.False(t, m.loading)

	// An immediate re-refresh is inside the throttle window and is dropped.
	// No fetch means no rosterPageMsg will ever arrive, so the loading flag
	// must not be raised.
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.Nil(t, cmd)
	require.False(t, m.loading)
}

func TestRosterSearchSubmitTriggersFetch(t *testing.T) {
	m := newAuthenticatedRoster(t)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	require.True(t, m.SearchFocused())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c', 'h', 'o'}})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.SearchFocused())
	require.NotNil(t, cmd)
	require.True(t, m.loading)
	require.Equal(t, "cho", m.query.query)
	require.Equal(t, 0, m.query.offset)
}
