// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/roster-tui/internal/identity"
)

// Provider is the subset of the identity provider this package depends on.
// *identity.Client satisfies it; tests substitute stubs.
type Provider interface {
	SignIn(ctx context.Context, identifier, secret string) (*identity.SignInResult, error)
	VerifyCode(ctx context.Context, pendingToken, code string) (*identity.SignInResult, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*identity.SessionInfo, error)
	GetUser(ctx context.Context, token string) (*identity.Principal, error)
}

// PrimaryResult is the outcome of a successful primary credential check.
// Exactly one of Session and Challenge is set.
type PrimaryResult struct {
	// Session is the ready session when no second factor is required.
	Session *Session

	// Challenge is set when the account requires a second factor before a
	// session exists.
	Challenge *PendingChallenge
}

// Verifier checks primary credentials against the identity provider. It is a
// leaf component: no state beyond the in-flight request.
type Verifier struct {
	provider Provider
	audit    *AuditLogger
}

// NewVerifier creates a credential verifier.
func NewVerifier(provider Provider, audit *AuditLogger) *Verifier {
	return &Verifier{provider: provider, audit: audit}
}

// VerifyPrimary validates an identifier/secret pair.
//
// Empty inputs fail locally with ErrValidation. Provider refusal surfaces as
// ErrRejectedCredentials, transport failure as ErrProviderUnavailable. When
// credentials are accepted but the profile lookup fails, the whole operation
// fails with ErrProfileLookup: a principal with no resolvable role cannot be
// authenticated.
func (v *Verifier) VerifyPrimary(ctx context.Context, identifier, secret string) (*PrimaryResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, fmt.Errorf("%w: identifier and secret are required", ErrValidation)
	}

	result, err := v.provider.SignIn(ctx, identifier, secret)
	if err != nil {
		v.audit.Log(EventLogin, identifier, false, fmt.Sprintf("error=%v", err))
		return nil, err
	}

	if result.SecondFactorRequired {
		v.audit.Log(EventLogin, identifier, true, "second_factor=pending")
		return &PrimaryResult{
			Challenge: &PendingChallenge{
				PrincipalID:  result.PrincipalID,
				Role:         result.Role,
				PendingToken: result.PendingToken,
				CreatedAt:    time.Now(),
			},
		}, nil
	}

	session, err := v.resolveSession(ctx, result)
	if err != nil {
		v.audit.Log(EventLogin, identifier, false, fmt.Sprintf("error=%v", err))
		return nil, err
	}

	v.audit.Log(EventLogin, identifier, true,
		fmt.Sprintf("role=%s token=%s", session.Principal.Role, sanitizeToken(session.Token)))
	return &PrimaryResult{Session: session}, nil
}

// resolveSession turns an accepted sign-in into a full session by resolving
// the owner's profile. Shared with second-factor completion.
func (v *Verifier) resolveSession(ctx context.Context, result *identity.SignInResult) (*Session, error) {
	if result.Token == "" {
		return nil, fmt.Errorf("%w: provider issued no token", ErrProviderUnavailable)
	}

	principal, err := v.provider.GetUser(ctx, result.Token)
	if err != nil {
		// Credentials were fine, but the principal is unusable without a
		// role. Best effort: do not leave the half-born session alive at
		// the provider.
		signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v.provider.SignOut(signOutCtx, result.Token)
		return nil, err
	}

	return &Session{
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		Principal:    *principal,
	}, nil
}
