// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// RefreshPoller revalidates the session against the identity provider on a
// fixed interval while authenticated.
//
// The poller distinguishes two failure classes, and the distinction is the
// component's single most important property:
//
//   - The provider authoritatively reports no session (ErrSessionInvalid):
//     local state is cleared and the client falls back to the login screen
//     silently. A refresh-triggered expiry is not an application error.
//   - The provider could not be asked (network outage, 5xx): the error is
//     swallowed and the session kept. A transient blip must never evict a
//     legitimate session.
type RefreshPoller struct {
	provider Provider
	interval time.Duration
	audit    *AuditLogger

	// token supplies the current access token; empty means no session.
	token func() string

	// onValid delivers a refreshed principal (may be called with the
	// session's existing principal when the profile lookup fails).
	onValid func(principal *RefreshedPrincipal)

	// onInvalid reports an authoritative "no session".
	onInvalid func()

	mu     sync.Mutex
	cancel context.CancelFunc
}

// RefreshedPrincipal carries the outcome of a successful revalidation.
type RefreshedPrincipal struct {
	Token       string
	PrincipalID string
	DisplayName string
	Username    string
	Role        string
}

// NewRefreshPoller creates a poller. Callbacks run on the poller goroutine.
func NewRefreshPoller(provider Provider, interval time.Duration, audit *AuditLogger,
	token func() string, onValid func(*RefreshedPrincipal), onInvalid func()) *RefreshPoller {
	return &RefreshPoller{
		provider:  provider,
		interval:  interval,
		audit:     audit,
		token:     token,
		onValid:   onValid,
		onInvalid: onInvalid,
	}
}

// Start arms the poller. Restarting a running poller first stops it, so at
// most one polling goroutine exists.
func (p *RefreshPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.run(ctx)
}

// Stop disarms the poller. The ticker goroutine exits and any in-flight
// introspection's result is discarded. Idempotent.
func (p *RefreshPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Running reports whether the poller is armed.
func (p *RefreshPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *RefreshPoller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// run ticks until cancelled.
func (p *RefreshPoller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll performs one revalidation round.
func (p *RefreshPoller) poll(ctx context.Context) {
	token := p.token()
	if token == "" {
		return
	}

	_, err := p.provider.GetSession(ctx, token)
	if ctx.Err() != nil {
		// Stopped while in flight; the result no longer matters.
		return
	}

	switch {
	case err == nil:
		refreshed := &RefreshedPrincipal{Token: token}
		// Best effort: a failed profile lookup during refresh keeps the
		// session and the cached principal.
		if principal, uerr := p.provider.GetUser(ctx, token); uerr == nil {
			refreshed.PrincipalID = principal.ID
			refreshed.DisplayName = principal.DisplayName
			refreshed.Username = principal.Username
			refreshed.Role = string(principal.Role)
		}
		p.audit.Log(EventSessionRefresh, sanitizeToken(token), true, "")
		if p.onValid != nil {
			p.onValid(refreshed)
		}

	case errors.Is(err, ErrSessionInvalid):
		// Authoritative: the session is gone. Silent fallback to the
		// unauthenticated state; no user-visible error, no expiry notice.
		p.audit.Log(EventSessionRefresh, sanitizeToken(token), false, "reason=session_invalid")
		if p.onInvalid != nil {
			p.onInvalid()
		}

	default:
		// Couldn't ask. Swallow; forcing a logout here would evict a
		// legitimate session over a network blip.
		log.Printf("session refresh skipped: %v", err)
		p.audit.Log(EventSessionRefresh, sanitizeToken(token), false,
			fmt.Sprintf("reason=provider_unavailable error=%v", err))
	}
}
