// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"time"

	"github.com/jeranaias/roster-tui/internal/identity"
)

// Session is the live, time-bounded authorization granted after a successful
// authentication. A non-nil Session always carries a complete Principal;
// there are no orphaned tokens.
type Session struct {
	// Token is the opaque access token.
	Token string

	// RefreshToken renews the session when the provider issues one.
	RefreshToken string

	// ExpiresAt is the absolute expiry. Zero means the provider only
	// supports introspection and local state never self-expires.
	ExpiresAt time.Time

	// Principal is the session's owner.
	Principal identity.Principal
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// PendingChallenge is the transient record between a successful primary
// credential check and second-factor resolution. It lives only in memory and
// is never written to the durable store. A pending challenge and a session
// are mutually exclusive: the client is never simultaneously awaiting a
// second factor and fully authenticated.
type PendingChallenge struct {
	// PrincipalID is the unconfirmed principal.
	PrincipalID string

	// Role is the role resolved from the primary login's profile lookup.
	Role identity.Role

	// PendingToken authorizes exactly one provider-side code verification.
	PendingToken string

	// CreatedAt is when primary credentials were accepted.
	CreatedAt time.Time
}
