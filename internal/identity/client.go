// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity is the client for the remote identity provider.
package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Configuration constants for the identity provider API.
const (
	// DefaultTimeout is the default timeout for provider requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 1 * 1024 * 1024 // 1MB

	// retryAttempts is how many times an idempotent request is tried in total.
	retryAttempts = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// SECURITY: TLS verification required for production.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// RESULT SHAPES
// =============================================================================

// Role is the closed set of privilege levels the directory recognizes.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// Valid reports whether the role is one of the recognized levels.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}

// Principal is the authenticated user's identity as the provider reports it.
type Principal struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// SignInResult is the provider's answer to a primary credential check.
type SignInResult struct {
	// PrincipalID identifies the user whose credentials were accepted.
	PrincipalID string `json:"principal_id"`

	// Role is the privilege level resolved at primary sign-in. The full
	// profile still comes from GetUser.
	Role Role `json:"role"`

	// Token is the session access token. Empty when a second factor is
	// still required.
	Token string `json:"token"`

	// RefreshToken renews the session, when the provider issues one.
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the session expiry. Zero when the provider only uses
	// introspection.
	ExpiresAt time.Time `json:"expires_at"`

	// SecondFactorRequired indicates the account needs a code before a
	// session token is issued.
	SecondFactorRequired bool `json:"second_factor_required"`

	// PendingToken authorizes exactly one second-factor verification for
	// this sign-in. Only set when SecondFactorRequired is true.
	PendingToken string `json:"pending_token"`
}

// SessionInfo is the provider's view of an existing session.
type SessionInfo struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the identity provider over HTTPS.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the shared HTTP client (tests).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets a per-client request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		// Copy so the shared client keeps its own timeout.
		c := *cl.httpClient
		c.Timeout = d
		cl.httpClient = &c
	}
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedHTTPClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SignIn checks the primary credentials.
func (c *Client) SignIn(ctx context.Context, identifier, secret string) (*SignInResult, error) {
	var result SignInResult
	err := c.post(ctx, "/v1/auth/sign-in", "", map[string]string{
		"identifier": identifier,
		"secret":     secret,
	}, &result)
	if err != nil {
		return nil, classify(err, ErrRejectedCredentials)
	}
	if result.PrincipalID == "" {
		// A 200 with no principal and no pending token is a malformed
		// answer, not a refusal: the provider is misbehaving, so it maps
		// to unavailable rather than rejected.
		return nil, fmt.Errorf("%w: provider returned no principal", ErrProviderUnavailable)
	}
	return &result, nil
}

// VerifyCode asks the provider to verify a second-factor code for a pending
// sign-in. The pending token is consumed whether or not the code matches.
func (c *Client) VerifyCode(ctx context.Context, pendingToken, code string) (*SignInResult, error) {
	var result SignInResult
	err := c.post(ctx, "/v1/auth/verify-code", "", map[string]string{
		"pending_token": pendingToken,
		"code":          code,
	}, &result)
	if err != nil {
		return nil, classify(err, ErrRejectedCode)
	}
	return &result, nil
}

// SignOut invalidates the session at the provider. A failed sign-out is not
// fatal; local state is cleared regardless by the caller.
func (c *Client) SignOut(ctx context.Context, token string) error {
	if err := c.post(ctx, "/v1/auth/sign-out", token, nil, nil); err != nil {
		return classify(err, ErrSessionInvalid)
	}
	return nil
}

// GetSession introspects the session behind token.
// Returns ErrSessionInvalid when the provider reports no such session.
func (c *Client) GetSession(ctx context.Context, token string) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.get(ctx, "/v1/auth/session", token, &info); err != nil {
		return nil, classify(err, ErrSessionInvalid)
	}
	if info.Token == "" {
		return nil, ErrSessionInvalid
	}
	return &info, nil
}

// GetUser fetches the profile of the session's owner.
func (c *Client) GetUser(ctx context.Context, token string) (*Principal, error) {
	var p Principal
	if err := c.get(ctx, "/v1/auth/user", token, &p); err != nil {
		return nil, classify(err, ErrProfileLookup)
	}
	if p.ID == "" || !p.Role.Valid() {
		return nil, fmt.Errorf("%w: incomplete profile", ErrProfileLookup)
	}
	return &p, nil
}

// ResetPasswordRequest asks the provider to start a password reset for email.
func (c *Client) ResetPasswordRequest(ctx context.Context, email string) error {
	err := c.post(ctx, "/v1/auth/reset-password", "", map[string]string{
		"email": email,
	}, nil)
	if err != nil {
		return classify(err, ErrRejectedCredentials)
	}
	return nil
}

// UpdatePassword changes the authenticated user's password.
func (c *Client) UpdatePassword(ctx context.Context, token, newSecret string) error {
	err := c.post(ctx, "/v1/auth/update-password", token, map[string]string{
		"secret": newSecret,
	}, nil)
	if err != nil {
		return classify(err, ErrSessionInvalid)
	}
	return nil
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

// httpError carries the status code through to classification.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.status, e.body)
}

// classify maps transport and HTTP errors onto the package sentinels.
// rejection is the sentinel for a 4xx "the provider said no" answer, which
// differs per operation.
func classify(err error, rejection error) error {
	var he *httpError
	if !errors.As(err, &he) {
		// No HTTP status at all: DNS, TCP, TLS, timeout.
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	switch he.status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return rejection
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

// post issues a JSON POST. token, when non-empty, becomes a bearer token.
func (c *Client) post(ctx context.Context, path, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, out)
}

// get issues a GET with a bearer token. GETs are idempotent, so transient
// failures (transport errors and 5xx answers) are retried with exponential
// backoff. 4xx answers are final and returned immediately.
func (c *Client) get(ctx context.Context, path, token string, out any) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(1<<uint(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		lastErr = c.do(req, token, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryable reports whether a failed request is worth repeating.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500
	}
	return true
}

// do sends the request and decodes the response into out.
func (c *Client) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	// Request IDs let provider-side logs be correlated with the audit log.
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(limited, 512))
		return &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		io.Copy(io.Discard, limited)
		return nil
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
