// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity is the client for the remote identity provider.
//
// The provider is a black box exposing sign-in, sign-out, session
// introspection, profile lookup, second-factor verification, and password
// maintenance. This package owns the HTTP plumbing and narrows the provider's
// responses into a small closed set of result shapes at the boundary; nothing
// loosely typed flows inward.
//
// Errors returned by the client are classified into the sentinel errors in
// errors.go. Callers branch with errors.Is; the distinction between
// ErrSessionInvalid (the provider authoritatively reports no session) and
// ErrProviderUnavailable (the provider could not be asked) is load-bearing
// for the session refresh logic.
package identity
