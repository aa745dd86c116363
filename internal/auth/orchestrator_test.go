// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/roster-tui/internal/identity"
	"github.com/jeranaias/roster-tui/internal/storage"
)

// stubProvider scripts the identity provider per test. Unset operations
// fail loudly so a test never silently depends on a default.
type stubProvider struct {
	mu sync.Mutex

	signIn     func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error)
	verifyCode func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error)
	signOut    func(ctx context.Context, token string) error
	getSession func(ctx context.Context, token string) (*identity.SessionInfo, error)
	getUser    func(ctx context.Context, token string) (*identity.Principal, error)

	signedOut []string
}

func (s *stubProvider) SignIn(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
	if s.signIn == nil {
		panic("unexpected SignIn")
	}
	return s.signIn(ctx, identifier, secret)
}

func (s *stubProvider) VerifyCode(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
	if s.verifyCode == nil {
		panic("unexpected VerifyCode")
	}
	return s.verifyCode(ctx, pendingToken, code)
}

func (s *stubProvider) SignOut(ctx context.Context, token string) error {
	s.mu.Lock()
	s.signedOut = append(s.signedOut, token)
	s.mu.Unlock()
	if s.signOut != nil {
		return s.signOut(ctx, token)
	}
	return nil
}

func (s *stubProvider) GetSession(ctx context.Context, token string) (*identity.SessionInfo, error) {
	if s.getSession == nil {
		return &identity.SessionInfo{Token: token}, nil
	}
	return s.getSession(ctx, token)
}

func (s *stubProvider) GetUser(ctx context.Context, token string) (*identity.Principal, error) {
	if s.getUser == nil {
		panic("unexpected GetUser")
	}
	return s.getUser(ctx, token)
}

func (s *stubProvider) signOutCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signedOut...)
}

var testPrincipal = identity.Principal{
	ID:          "p-1",
	Username:    "jdoe",
	DisplayName: "J. Doe",
	Role:        identity.RoleViewer,
}

// acceptAll scripts a provider that accepts any credentials without a
// second factor.
func acceptAll(token string) *stubProvider {
	return &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: testPrincipal.ID, Role: testPrincipal.Role, Token: token}, nil
		},
		getUser: func(ctx context.Context, tok string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
}

func newTestOrchestrator(t *testing.T, provider Provider) (*Orchestrator, *SessionStore) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := NewSessionStore(store, filepath.Join(dir, "store.key"))
	audit, err := NewAuditLogger("", false)
	require.NoError(t, err)

	// Long timer budgets keep background expiry out of these tests.
	orch := NewOrchestrator(provider, sessions, audit, time.Hour, time.Hour)
	t.Cleanup(orch.Logout)
	return orch, sessions
}

func TestLoginAccepted(t *testing.T) {
	provider := acceptAll("sess_abc")
	orch, sessions := newTestOrchestrator(t, provider)

	outcome, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)
	require.Equal(t, LoginAccepted, outcome)
	require.Equal(t, StateAuthenticated, orch.State())

	token, ok := orch.Token()
	require.True(t, ok)
	require.Equal(t, "sess_abc", token)

	p, ok := orch.Principal()
	require.True(t, ok)
	require.Equal(t, testPrincipal, p)

	// The session survives in the durable store.
	stored := sessions.Read()
	require.NotNil(t, stored)
	require.Equal(t, "sess_abc", stored.Token)
}

func TestLoginRejectedLeavesStateUntouched(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return nil, identity.ErrRejectedCredentials
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "wrong")
	require.ErrorIs(t, err, ErrRejectedCredentials)
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, sessions.Read())
}

func TestLoginEmptyInputFailsLocally(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			t.Fatal("empty credentials must not reach the provider")
			return nil, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	for _, tc := range []struct{ identifier, secret string }{
		{"", "secret"},
		{"jdoe", ""},
		{"   ", "secret"},
		{"", ""},
	} {
		_, err := orch.Login(context.Background(), tc.identifier, tc.secret)
		require.ErrorIs(t, err, ErrValidation)
	}
	require.Equal(t, StateUnauthenticated, orch.State())
}

func TestLoginProfileFailureAbandons(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_orphan"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			return nil, identity.ErrProfileLookup
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.ErrorIs(t, err, ErrProfileLookup)
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, sessions.Read())

	// The half-born provider session was revoked best effort.
	require.Contains(t, provider.signOutCalls(), "sess_orphan")
}

func TestLoginSecondFactorRequired(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{
				PrincipalID:          "p-1",
				Role:                 identity.RoleViewer,
				SecondFactorRequired: true,
				PendingToken:         "pend_xyz",
			}, nil
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	outcome, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)
	require.Equal(t, LoginSecondFactorRequired, outcome)
	require.Equal(t, StateAwaitingSecondFactor, orch.State())

	// No session may exist while awaiting the second factor.
	_, ok := orch.Token()
	require.False(t, ok)
	require.Nil(t, sessions.Read())

	challenge := orch.Challenge()
	require.NotNil(t, challenge)
	require.Equal(t, "pend_xyz", challenge.Pending().PendingToken)
}

func TestVerifySecondFactorSuccess(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			require.Equal(t, "pend_xyz", pendingToken)
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_2fa"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	ok, err := orch.VerifySecondFactor(context.Background(), "123456")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateAuthenticated, orch.State())
	require.Nil(t, orch.Challenge())
	require.NotNil(t, sessions.Read())
}

func TestVerifySecondFactorMalformedCode(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			t.Fatal("malformed codes must not reach the provider")
			return nil, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		ok, err := orch.VerifySecondFactor(context.Background(), code)
		require.False(t, ok)
		require.ErrorIs(t, err, ErrValidation)
	}
	require.Equal(t, StateAwaitingSecondFactor, orch.State())
}

func TestVerifySecondFactorRejectedAllowsRetry(t *testing.T) {
	attempt := 0
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			attempt++
			if attempt == 1 {
				return nil, identity.ErrRejectedCode
			}
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_retry"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	ok, err := orch.VerifySecondFactor(context.Background(), "000000")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrRejectedCode)
	require.Equal(t, StateAwaitingSecondFactor, orch.State())
	require.Equal(t, ChallengeRejected, orch.Challenge().State())

	// The UI clears the field and the challenge returns to idle.
	orch.Challenge().Reset()
	require.Equal(t, ChallengeIdle, orch.Challenge().State())

	ok, err = orch.VerifySecondFactor(context.Background(), "111111")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateAuthenticated, orch.State())
}

func TestVerifySecondFactorProfileFailureAbandons(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_noprofile"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			return nil, identity.ErrProfileLookup
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	ok, err := orch.VerifySecondFactor(context.Background(), "123456")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrProfileLookup)

	// The whole attempt is abandoned; no half-authenticated state.
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, orch.Challenge())
	require.Nil(t, sessions.Read())
}

func TestCancelSecondFactor(t *testing.T) {
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.CancelSecondFactor()
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, orch.Challenge())

	_, err = orch.VerifySecondFactor(context.Background(), "123456")
	require.ErrorIs(t, err, ErrNotAwaitingChallenge)
}

func TestCancelWinsAgainstInFlightVerification(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			close(inFlight)
			<-release
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_late"}, nil
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := orch.VerifySecondFactor(context.Background(), "123456")
		done <- err
	}()

	<-inFlight
	orch.CancelSecondFactor()
	close(release)

	err = <-done
	require.ErrorIs(t, err, ErrNotAwaitingChallenge)

	// The late success was discarded; no session anywhere.
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, sessions.Read())
	_, ok := orch.Token()
	require.False(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	provider := acceptAll("sess_bye")
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.Logout()
	require.Equal(t, StateUnauthenticated, orch.State())
	require.False(t, orch.ExpiredNoticeVisible())
	require.Nil(t, sessions.Read())
	require.Contains(t, provider.signOutCalls(), "sess_bye")

	// Logout when already logged out is a no-op.
	orch.Logout()
	require.Equal(t, StateUnauthenticated, orch.State())
}

func TestLogoutWinsAgainstStaleRefresh(t *testing.T) {
	provider := acceptAll("sess_stale")
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)
	orch.Logout()

	// A refresh result that raced the logout must not resurrect the session.
	orch.applyRefresh(&RefreshedPrincipal{
		Token:       "sess_stale",
		PrincipalID: "p-1",
		Username:    "jdoe",
		Role:        string(identity.RoleViewer),
	})
	require.Equal(t, StateUnauthenticated, orch.State())
	require.Nil(t, sessions.Read())
}

func TestRestoreResumesSession(t *testing.T) {
	provider := acceptAll("sess_resume")
	orch, sessions := newTestOrchestrator(t, provider)

	require.NoError(t, sessions.Write(&Session{Token: "sess_resume", Principal: testPrincipal}))

	require.True(t, orch.Restore())
	require.Equal(t, StateAuthenticated, orch.State())

	token, ok := orch.Token()
	require.True(t, ok)
	require.Equal(t, "sess_resume", token)

	p, ok := orch.Principal()
	require.True(t, ok)
	require.Equal(t, testPrincipal, p)
}

func TestRestoreWithEmptyStore(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubProvider{})
	require.False(t, orch.Restore())
	require.Equal(t, StateUnauthenticated, orch.State())
}

func TestLoginSupersededByRestore(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			close(inFlight)
			<-release
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_slow"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
	orch, sessions := newTestOrchestrator(t, provider)
	require.NoError(t, sessions.Write(&Session{Token: "sess_restored", Principal: testPrincipal}))

	done := make(chan error, 1)
	go func() {
		_, err := orch.Login(context.Background(), "jdoe", "hunter2")
		done <- err
	}()

	<-inFlight
	require.True(t, orch.Restore())
	close(release)

	// The slow login result arrived under a dead epoch and was discarded.
	require.ErrorIs(t, <-done, ErrSuperseded)

	token, ok := orch.Token()
	require.True(t, ok)
	require.Equal(t, "sess_restored", token)
}

func TestReconcileConvergesOnExternalLogout(t *testing.T) {
	provider := acceptAll("sess_ext")
	orch, sessions := newTestOrchestrator(t, provider)

	var events []Event
	var eventsMu sync.Mutex
	orch.SetNotifier(func(e Event) {
		eventsMu.Lock()
		events = append(events, e)
		eventsMu.Unlock()
	})

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	// Another process cleared the durable session behind our back.
	require.NoError(t, sessions.Clear())
	orch.Reconcile()

	require.Equal(t, StateUnauthenticated, orch.State())
	require.False(t, orch.ExpiredNoticeVisible())

	eventsMu.Lock()
	defer eventsMu.Unlock()
	require.Equal(t, []Event{EventStateChanged}, events)
}

func TestReconcileWithIntactSessionIsNoOp(t *testing.T) {
	provider := acceptAll("sess_intact")
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.Reconcile()
	require.Equal(t, StateAuthenticated, orch.State())
}

func TestIdleExpiryShowsNoticeAfterCleanup(t *testing.T) {
	provider := acceptAll("sess_idle")
	orch, sessions := newTestOrchestrator(t, provider)

	noticed := make(chan Event, 1)
	orch.SetNotifier(func(e Event) {
		// Cleanup must be complete before the notification fires.
		require.Equal(t, StateUnauthenticated, orch.State())
		require.Nil(t, sessions.Read())
		noticed <- e
	})

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.handleIdleExpired()
	require.Equal(t, EventSessionExpiredNotice, <-noticed)
	require.True(t, orch.ExpiredNoticeVisible())

	orch.DismissExpiredNotice()
	require.False(t, orch.ExpiredNoticeVisible())
	require.Equal(t, StateUnauthenticated, orch.State())
}

func TestRefreshInvalidIsSilent(t *testing.T) {
	provider := acceptAll("sess_gone")
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.handleRefreshInvalid()
	require.Equal(t, StateUnauthenticated, orch.State())
	require.False(t, orch.ExpiredNoticeVisible(), "refresh expiry must not show the idle notice")
	require.Nil(t, sessions.Read())
}

func TestApplyRefreshUpdatesPrincipal(t *testing.T) {
	provider := acceptAll("sess_live")
	orch, sessions := newTestOrchestrator(t, provider)

	_, err := orch.Login(context.Background(), "jdoe", "hunter2")
	require.NoError(t, err)

	orch.applyRefresh(&RefreshedPrincipal{
		Token:       "sess_live",
		PrincipalID: "p-1",
		Username:    "jdoe",
		DisplayName: "J. Doe (Promoted)",
		Role:        string(identity.RoleManager),
	})

	p, ok := orch.Principal()
	require.True(t, ok)
	require.Equal(t, identity.RoleManager, p.Role)
	require.Equal(t, "J. Doe (Promoted)", p.DisplayName)

	// The durable copy follows.
	stored := sessions.Read()
	require.NotNil(t, stored)
	require.Equal(t, identity.RoleManager, stored.Principal.Role)
}

func TestChallengeAndSessionMutuallyExclusive(t *testing.T) {
	step := 0
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			step++
			if step%2 == 1 {
				return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_xyz"}, nil
			}
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_direct"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_2fa"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	check := func() {
		_, hasToken := orch.Token()
		hasChallenge := orch.Challenge() != nil
		require.False(t, hasToken && hasChallenge,
			"a pending challenge and a live session may never coexist")
	}

	// Walk the machine through every transition, checking after each step.
	check()
	_, err := orch.Login(context.Background(), "jdoe", "pw") // challenge path
	require.NoError(t, err)
	check()
	_, err = orch.VerifySecondFactor(context.Background(), "123456")
	require.NoError(t, err)
	check()
	orch.Logout()
	check()
	_, err = orch.Login(context.Background(), "jdoe", "pw") // challenge path again
	require.NoError(t, err)
	check()
	orch.CancelSecondFactor()
	check()
	_, err = orch.Login(context.Background(), "jdoe", "pw") // direct path
	require.NoError(t, err)
	check()
	orch.handleIdleExpired()
	check()
}

// TestExclusionHoldsUnderRandomWalk drives the machine through hundreds of
// randomly chosen transitions, with the provider randomly demanding a second
// factor or rejecting, and checks the challenge/session exclusion plus the
// state's own consistency after every single step. The seed is logged so a
// failing walk can be replayed.
func TestExclusionHoldsUnderRandomWalk(t *testing.T) {
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("walk seed: %d", seed)

	var wantChallenge, wantReject bool
	provider := &stubProvider{
		signIn: func(ctx context.Context, identifier, secret string) (*identity.SignInResult, error) {
			if wantReject {
				return nil, identity.ErrRejectedCredentials
			}
			if wantChallenge {
				return &identity.SignInResult{PrincipalID: "p-1", SecondFactorRequired: true, PendingToken: "pend_walk"}, nil
			}
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_walk"}, nil
		},
		verifyCode: func(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error) {
			if wantReject {
				return nil, identity.ErrRejectedCode
			}
			return &identity.SignInResult{PrincipalID: "p-1", Token: "sess_walk_2fa"}, nil
		},
		getUser: func(ctx context.Context, token string) (*identity.Principal, error) {
			p := testPrincipal
			return &p, nil
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	check := func(step int, action string) {
		t.Helper()
		token, hasToken := orch.Token()
		hasChallenge := orch.Challenge() != nil
		require.False(t, hasToken && hasChallenge,
			"step %d after %s: token %q coexists with a pending challenge", step, action, token)
		switch state := orch.State(); state {
		case StateAuthenticated:
			require.True(t, hasToken, "step %d after %s: authenticated without a token", step, action)
		case StateAwaitingSecondFactor:
			require.True(t, hasChallenge, "step %d after %s: awaiting code without a challenge", step, action)
			require.False(t, hasToken, "step %d after %s: awaiting code with a live token", step, action)
		case StateUnauthenticated:
			require.False(t, hasToken, "step %d after %s: unauthenticated with a live token", step, action)
			require.False(t, hasChallenge, "step %d after %s: unauthenticated with a challenge", step, action)
		default:
			t.Fatalf("step %d after %s: unknown state %v", step, action, state)
		}
	}

	actions := []struct {
		name string
		do   func()
	}{
		{"login", func() {
			wantChallenge = rng.Intn(2) == 0
			wantReject = rng.Intn(4) == 0
			orch.Login(context.Background(), "jdoe", "pw")
		}},
		{"verify", func() {
			// A rejected challenge refuses further codes until reset.
			if ch := orch.Challenge(); ch != nil && ch.State() == ChallengeRejected {
				ch.Reset()
			}
			wantReject = rng.Intn(3) == 0
			orch.VerifySecondFactor(context.Background(), "123456")
		}},
		{"cancel", orch.CancelSecondFactor},
		{"logout", orch.Logout},
		{"idle expiry", orch.handleIdleExpired},
		{"refresh invalid", orch.handleRefreshInvalid},
	}

	check(0, "start")
	for step := 1; step <= 500; step++ {
		action := actions[rng.Intn(len(actions))]
		action.do()
		check(step, action.name)
	}
}
