// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/roster-tui/internal/identity"
)

// Second-factor code parameters.
const (
	// CodeLength is the exact number of digits a code must have.
	CodeLength = 6

	// CodeWindow is the advisory countdown shown while entering a code.
	// It is UI state, not a security boundary; the provider enforces the
	// real validity window.
	CodeWindow = 30 * time.Second
)

// ChallengeState is the second-factor sub-machine state.
type ChallengeState int

const (
	// ChallengeIdle awaits code input.
	ChallengeIdle ChallengeState = iota
	// ChallengeVerifying has a verification in flight.
	ChallengeVerifying
	// ChallengeRejected holds a refused code until the field is cleared.
	ChallengeRejected
	// ChallengeSuccess is terminal; ownership passes to the Orchestrator.
	ChallengeSuccess
)

// String returns the state name.
func (s ChallengeState) String() string {
	switch s {
	case ChallengeIdle:
		return "IDLE"
	case ChallengeVerifying:
		return "VERIFYING"
	case ChallengeRejected:
		return "REJECTED"
	case ChallengeSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// ValidateCodeFormat rejects malformed codes locally, before any network
// round trip. The error is ErrValidation, distinct from a wrong-code
// rejection.
func ValidateCodeFormat(code string) error {
	if len(code) != CodeLength {
		return fmt.Errorf("%w: code must be exactly %d digits", ErrValidation, CodeLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: code must be numeric", ErrValidation)
		}
	}
	return nil
}

// Challenge verifies a second-factor code for one pending sign-in. Each
// attempt is independent; there is no local attempt limit (the provider may
// enforce its own).
type Challenge struct {
	provider Provider
	audit    *AuditLogger
	pending  *PendingChallenge

	mu        sync.Mutex
	state     ChallengeState
	cancelled bool
}

// NewChallenge creates a challenge for the given pending sign-in.
func NewChallenge(provider Provider, audit *AuditLogger, pending *PendingChallenge) *Challenge {
	return &Challenge{
		provider: provider,
		audit:    audit,
		pending:  pending,
		state:    ChallengeIdle,
	}
}

// State returns the current sub-machine state.
func (c *Challenge) State() ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the pending sign-in this challenge resolves.
func (c *Challenge) Pending() *PendingChallenge {
	return c.pending
}

// Verify checks a code with the provider. Malformed input fails locally with
// ErrValidation and leaves the state unchanged. A refused code moves the
// machine to Rejected and returns ErrRejectedCode. On success the machine is
// terminal and the provider's sign-in result (now carrying a session token)
// is returned.
//
// A Cancel that lands while the request is in flight wins: the late result
// is discarded and ErrNotAwaitingChallenge returned.
func (c *Challenge) Verify(ctx context.Context, code string) (*identity.SignInResult, error) {
	if err := ValidateCodeFormat(code); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return nil, ErrNotAwaitingChallenge
	}
	switch c.state {
	case ChallengeSuccess:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: challenge already resolved", ErrNotAwaitingChallenge)
	case ChallengeVerifying:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: verification already in flight", ErrValidation)
	}
	c.state = ChallengeVerifying
	c.mu.Unlock()

	result, err := c.provider.VerifyCode(ctx, c.pending.PendingToken, code)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		// The user left while we were waiting. No state may change.
		return nil, ErrNotAwaitingChallenge
	}

	if err != nil {
		if errors.Is(err, ErrRejectedCode) {
			c.state = ChallengeRejected
		} else {
			// Infrastructure failure, not a refused code. The attempt
			// simply did not happen; allow an immediate retry.
			c.state = ChallengeIdle
		}
		c.audit.Log(EventCodeVerify, c.pending.PrincipalID, false, fmt.Sprintf("error=%v", err))
		return nil, err
	}

	c.state = ChallengeSuccess
	c.audit.Log(EventCodeVerify, c.pending.PrincipalID, true, "")
	return result, nil
}

// Reset returns a Rejected challenge to Idle once the UI has cleared the
// code field. A no-op in any other state.
func (c *Challenge) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ChallengeRejected {
		c.state = ChallengeIdle
	}
}

// Cancel abandons the challenge. Any in-flight verification result is
// discarded; no partial session is ever created.
func (c *Challenge) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// Cancelled reports whether the challenge was abandoned.
func (c *Challenge) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
