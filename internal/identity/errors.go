// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity is the client for the remote identity provider.
package identity

import "errors"

var (
	// ErrRejectedCredentials indicates the provider refused the primary
	// credentials. Recoverable locally; shown inline at the login form.
	ErrRejectedCredentials = errors.New("credentials rejected")

	// ErrRejectedCode indicates the provider refused a second-factor code.
	ErrRejectedCode = errors.New("second-factor code rejected")

	// ErrProviderUnavailable indicates a transport or infrastructure
	// failure. Retryable; must never force a logout on its own.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrSessionInvalid indicates the provider authoritatively reports the
	// session no longer exists. The only refresh error that clears local
	// state.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrProfileLookup indicates credentials were accepted but the user's
	// profile (and therefore role) could not be resolved. A principal with
	// no resolvable role cannot be authenticated.
	ErrProfileLookup = errors.New("profile lookup failed")
)
