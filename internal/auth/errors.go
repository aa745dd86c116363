// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"errors"

	"github.com/jeranaias/roster-tui/internal/identity"
)

// Error taxonomy. Local validation failures are declared here; boundary
// failures are the identity package's sentinels, re-exported so callers
// branch on one package.
//
// Propagation policy:
//
//   - ErrValidation and ErrRejectedCredentials are recovered locally and
//     shown inline. Authentication state does not change.
//   - ErrProviderUnavailable during login is surfaced as retryable; during
//     background refresh it is swallowed.
//   - ErrSessionInvalid during refresh is the only error class that clears
//     local state, besides idle expiry.
var (
	// ErrValidation indicates malformed local input. Never reaches the
	// network.
	ErrValidation = errors.New("validation failed")

	// ErrRejectedCredentials re-exports identity.ErrRejectedCredentials.
	ErrRejectedCredentials = identity.ErrRejectedCredentials

	// ErrRejectedCode re-exports identity.ErrRejectedCode.
	ErrRejectedCode = identity.ErrRejectedCode

	// ErrProviderUnavailable re-exports identity.ErrProviderUnavailable.
	ErrProviderUnavailable = identity.ErrProviderUnavailable

	// ErrSessionInvalid re-exports identity.ErrSessionInvalid.
	ErrSessionInvalid = identity.ErrSessionInvalid

	// ErrProfileLookup re-exports identity.ErrProfileLookup.
	ErrProfileLookup = identity.ErrProfileLookup

	// ErrNotAwaitingChallenge indicates a second-factor operation was
	// attempted with no pending challenge.
	ErrNotAwaitingChallenge = errors.New("no pending second-factor challenge")

	// ErrSuperseded indicates an in-flight operation's result arrived
	// after the state machine had already moved on (cancel or logout) and
	// was discarded rather than applied.
	ErrSuperseded = errors.New("operation superseded")
)
