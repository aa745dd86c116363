// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle for the
// roster client.
//
// The package is organized around a single state machine, the Orchestrator,
// which is the only writer of session state. It composes:
//
//   - Verifier: primary credential check against the identity provider,
//     including the profile lookup that resolves the user's role.
//   - Challenge: second-factor code verification for accounts that require
//     one. A pending challenge and a session are mutually exclusive.
//   - SessionStore: the durable record of the current principal and token,
//     written both-or-neither and tolerant of corrupt stored state.
//   - IdleMonitor: forced logout after a configurable inactivity budget.
//   - RefreshPoller: periodic revalidation of the session against the
//     provider. An authoritative "no session" clears local state; a
//     transient failure never does.
//
// # Orchestrator states
//
//	Unauthenticated -> AwaitingSecondFactor -> Authenticated
//	Unauthenticated ------------------------> Authenticated
//	Authenticated --(idle expiry, refresh invalid, logout)--> Unauthenticated
//
// Idle expiry additionally raises the session-expired notice so the user is
// told why they were logged out; explicit logout and refresh-invalid do not.
//
// Entering Authenticated arms the idle monitor and the refresh poller exactly
// once; every transition out of Authenticated disarms both, including
// transitions triggered by one of the timers itself.
package auth
