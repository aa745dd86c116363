// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/roster-tui/internal/identity"
)

// State is the orchestrator's top-level state.
type State int

const (
	// StateUnauthenticated shows the login form.
	StateUnauthenticated State = iota
	// StateAwaitingSecondFactor has accepted primary credentials and waits
	// for a code. No session exists yet.
	StateAwaitingSecondFactor
	// StateAuthenticated gates the protected application.
	StateAuthenticated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAwaitingSecondFactor:
		return "AWAITING_SECOND_FACTOR"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// LoginOutcome is the answer a login attempt produces for the UI.
type LoginOutcome int

const (
	// LoginAccepted means the client is now authenticated.
	LoginAccepted LoginOutcome = iota
	// LoginSecondFactorRequired means a code entry must follow.
	LoginSecondFactorRequired
)

// Event is a notification to the UI layer.
type Event int

const (
	// EventStateChanged signals the orchestrator left or entered a state
	// outside a direct call (refresh-invalid, external logout).
	EventStateChanged Event = iota
	// EventSessionExpiredNotice signals idle expiry; the UI shows the
	// session-expired overlay.
	EventSessionExpiredNotice
)

// signOutTimeout bounds the best-effort provider sign-out on logout.
const signOutTimeout = 5 * time.Second

// Orchestrator is the single source of truth for whether the user is allowed
// into the protected application. It is the only writer of the session store;
// leaf components never mutate authentication state directly.
type Orchestrator struct {
	provider Provider
	verifier *Verifier
	store    *SessionStore
	idle     *IdleMonitor
	poller   *RefreshPoller
	audit    *AuditLogger

	mu        sync.Mutex
	state     State
	session   *Session
	challenge *Challenge
	notice    bool

	// epoch is bumped by every transition. In-flight network results carry
	// the epoch they started under and are discarded on mismatch, so a
	// cancel or logout always wins the race against a late arrival.
	epoch uint64

	notify func(Event)
}

// NewOrchestrator wires the lifecycle components together. idleBudget is the
// inactivity duration before forced logout; refreshInterval is the session
// revalidation period.
func NewOrchestrator(provider Provider, store *SessionStore, audit *AuditLogger,
	idleBudget, refreshInterval time.Duration) *Orchestrator {

	o := &Orchestrator{
		provider: provider,
		verifier: NewVerifier(provider, audit),
		store:    store,
		idle:     NewIdleMonitor(idleBudget),
		audit:    audit,
		state:    StateUnauthenticated,
	}
	o.poller = NewRefreshPoller(provider, refreshInterval, audit,
		o.currentToken, o.applyRefresh, o.handleRefreshInvalid)
	return o
}

// SetNotifier registers the UI notification callback. Events may arrive on
// timer goroutines.
func (o *Orchestrator) SetNotifier(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notify = fn
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current top-level state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsAuthenticated reports whether the protected application may render.
func (o *Orchestrator) IsAuthenticated() bool {
	return o.State() == StateAuthenticated
}

// Role returns the authenticated principal's role, or "" when logged out.
func (o *Orchestrator) Role() identity.Role {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.Principal.Role
}

// Principal returns a copy of the authenticated principal.
func (o *Orchestrator) Principal() (identity.Principal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return identity.Principal{}, false
	}
	return o.session.Principal, true
}

// Token returns the live access token for calls to protected collaborators.
func (o *Orchestrator) Token() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAuthenticated || o.session == nil {
		return "", false
	}
	return o.session.Token, true
}

// Challenge returns the active second-factor challenge, if any.
func (o *Orchestrator) Challenge() *Challenge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.challenge
}

// ExpiredNoticeVisible reports whether the idle-expiry notice is showing.
func (o *Orchestrator) ExpiredNoticeVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notice
}

// DismissExpiredNotice closes the notice. Informational only: dismissing
// returns the user to the login form, it does not re-authenticate.
func (o *Orchestrator) DismissExpiredNotice() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notice = false
}

// Touch forwards a qualifying user-activity signal to the idle monitor.
func (o *Orchestrator) Touch() {
	o.idle.Touch()
}

// currentToken supplies the poller with the live access token.
func (o *Orchestrator) currentToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAuthenticated || o.session == nil {
		return ""
	}
	return o.session.Token
}

// =============================================================================
// STARTUP
// =============================================================================

// Restore loads a previously stored session. When one is found the
// orchestrator starts directly in Authenticated with both timers armed,
// indistinguishable to consumers from having just logged in.
func (o *Orchestrator) Restore() bool {
	session := o.store.Read()
	if session == nil {
		return false
	}

	o.mu.Lock()
	o.enterAuthenticatedLocked(session, false)
	o.mu.Unlock()

	o.audit.Log(EventSessionRestore, session.Principal.ID, true,
		fmt.Sprintf("token=%s", sanitizeToken(session.Token)))
	return true
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Login submits primary credentials.
//
// Outcomes: LoginAccepted (now authenticated), LoginSecondFactorRequired
// (code entry follows), or an error from the taxonomy. A result arriving
// after the user has already left the login flow is discarded with
// ErrSuperseded.
func (o *Orchestrator) Login(ctx context.Context, identifier, secret string) (LoginOutcome, error) {
	o.mu.Lock()
	if o.state != StateUnauthenticated {
		o.mu.Unlock()
		return 0, fmt.Errorf("%w: login only from unauthenticated state", ErrValidation)
	}
	epoch := o.epoch
	o.mu.Unlock()

	result, err := o.verifier.VerifyPrimary(ctx, identifier, secret)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch != epoch || o.state != StateUnauthenticated {
		return 0, ErrSuperseded
	}
	if err != nil {
		return 0, err
	}

	if result.Challenge != nil {
		// Session store untouched: awaiting-second-factor and
		// authenticated are mutually exclusive.
		o.epoch++
		o.state = StateAwaitingSecondFactor
		o.challenge = NewChallenge(o.provider, o.audit, result.Challenge)
		return LoginSecondFactorRequired, nil
	}

	o.enterAuthenticatedLocked(result.Session, true)
	return LoginAccepted, nil
}

// VerifySecondFactor submits a code for the pending challenge. Returns true
// when the client is now authenticated. Malformed codes fail with
// ErrValidation and change nothing; a wrong code leaves the client awaiting
// another attempt.
func (o *Orchestrator) VerifySecondFactor(ctx context.Context, code string) (bool, error) {
	o.mu.Lock()
	if o.state != StateAwaitingSecondFactor || o.challenge == nil {
		o.mu.Unlock()
		return false, ErrNotAwaitingChallenge
	}
	challenge := o.challenge
	epoch := o.epoch
	o.mu.Unlock()

	result, err := challenge.Verify(ctx, code)
	if err != nil {
		return false, err
	}

	session, err := o.verifier.resolveSession(ctx, result)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch != epoch || o.state != StateAwaitingSecondFactor {
		return false, ErrSuperseded
	}

	if err != nil {
		// Code was right but the principal is unusable (no role). Abandon
		// the whole attempt; a half-authenticated state must not exist.
		o.epoch++
		o.state = StateUnauthenticated
		o.challenge = nil
		return false, err
	}

	o.challenge = nil
	o.enterAuthenticatedLocked(session, true)
	return true, nil
}

// CancelSecondFactor abandons the pending challenge and returns to the login
// form. Any in-flight verification is invalidated.
func (o *Orchestrator) CancelSecondFactor() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAwaitingSecondFactor {
		return
	}
	if o.challenge != nil {
		o.challenge.Cancel()
		o.challenge = nil
	}
	o.epoch++
	o.state = StateUnauthenticated
}

// Logout explicitly ends the session. Local state is cleared first and
// unconditionally; the provider sign-out is best effort. No expiry notice is
// shown.
func (o *Orchestrator) Logout() {
	o.mu.Lock()
	if o.state != StateAuthenticated || o.session == nil {
		o.mu.Unlock()
		return
	}
	token := o.session.Token
	principalID := o.session.Principal.ID
	o.leaveAuthenticatedLocked(false)
	o.mu.Unlock()

	o.audit.Log(EventLogout, principalID, true, "reason=explicit")

	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	o.provider.SignOut(ctx, token)
}

// Reconcile re-reads the durable store and converges on an external logout
// (another client on this machine cleared the session). Invoked by the
// storage watcher; a reconcile against unchanged state is a no-op.
func (o *Orchestrator) Reconcile() {
	stored := o.store.Read()

	o.mu.Lock()
	if o.state != StateAuthenticated || stored != nil {
		o.mu.Unlock()
		return
	}
	o.leaveAuthenticatedLocked(false)
	notify := o.notify
	o.mu.Unlock()

	o.audit.Log(EventLogout, "", true, "reason=external")
	if notify != nil {
		notify(EventStateChanged)
	}
}

// =============================================================================
// TIMER CALLBACKS
// =============================================================================

// handleIdleExpired runs when the inactivity budget elapses. Cleanup happens
// synchronously before any notification, so no consumer can observe an
// authenticated state after expiry.
func (o *Orchestrator) handleIdleExpired() {
	o.mu.Lock()
	if o.state != StateAuthenticated {
		o.mu.Unlock()
		return
	}
	principalID := ""
	if o.session != nil {
		principalID = o.session.Principal.ID
	}
	o.leaveAuthenticatedLocked(true)
	notify := o.notify
	o.mu.Unlock()

	o.audit.Log(EventSessionExpired, principalID, true, "reason=idle")
	if notify != nil {
		notify(EventSessionExpiredNotice)
	}
}

// handleRefreshInvalid runs when the provider authoritatively reports the
// session gone. Silent: no expiry notice, no error surface.
func (o *Orchestrator) handleRefreshInvalid() {
	o.mu.Lock()
	if o.state != StateAuthenticated {
		o.mu.Unlock()
		return
	}
	o.leaveAuthenticatedLocked(false)
	notify := o.notify
	o.mu.Unlock()

	if notify != nil {
		notify(EventStateChanged)
	}
}

// applyRefresh folds a successful revalidation back into local state. A
// token mismatch means a logout or fresh login interleaved; the stale result
// is discarded, so logout always wins against an in-flight refresh.
func (o *Orchestrator) applyRefresh(refreshed *RefreshedPrincipal) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAuthenticated || o.session == nil || o.session.Token != refreshed.Token {
		return
	}
	if refreshed.PrincipalID == "" {
		return
	}

	o.session.Principal = identity.Principal{
		ID:          refreshed.PrincipalID,
		Username:    refreshed.Username,
		DisplayName: refreshed.DisplayName,
		Role:        identity.Role(refreshed.Role),
	}
	// Keep the durable copy in step so a restart restores current data.
	o.store.Write(o.session)
}

// =============================================================================
// STATE ENTRY/EXIT (callers hold o.mu)
// =============================================================================

// enterAuthenticatedLocked installs the session and arms both timers exactly
// once. persist controls whether the store is written (a Restore already
// read the same state from it).
func (o *Orchestrator) enterAuthenticatedLocked(session *Session, persist bool) {
	o.epoch++
	o.state = StateAuthenticated
	o.session = session
	o.challenge = nil
	o.notice = false

	if persist {
		if err := o.store.Write(session); err != nil {
			o.audit.Log(EventLogin, session.Principal.ID, false,
				fmt.Sprintf("error=store_write_failed detail=%v", err))
		}
	}

	o.idle.Start(o.handleIdleExpired)
	o.poller.Start()
}

// leaveAuthenticatedLocked clears the session and disarms both timers
// unconditionally, even when the transition was triggered by one of the
// timers itself (their Stops are idempotent). showNotice marks the idle
// expiry overlay.
func (o *Orchestrator) leaveAuthenticatedLocked(showNotice bool) {
	o.epoch++
	o.state = StateUnauthenticated
	o.session = nil
	o.challenge = nil
	o.notice = showNotice

	o.idle.Stop()
	o.poller.Stop()

	if err := o.store.Clear(); err != nil {
		o.audit.Log(EventLogout, "", false, fmt.Sprintf("error=store_clear_failed detail=%v", err))
	}
}
