// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity is the client for the remote identity provider.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/pbkdf2"
)

// Local provider constants.
const (
	// localSessionDuration is the absolute lifetime of a locally minted
	// session.
	localSessionDuration = 12 * time.Hour

	// localPendingDuration is how long an accepted primary sign-in waits
	// for its second factor.
	localPendingDuration = 5 * time.Minute

	// localPBKDF2Iterations stretches stored password hashes.
	// OWASP recommends 600,000+ for PBKDF2-SHA-256.
	localPBKDF2Iterations = 600000

	localSaltSize = 32
	localHashSize = 32

	sessionTokenPrefix = "sess_"
	pendingTokenPrefix = "pend_"

	localUserKeyPrefix    = "local.user."
	localSessionKeyPrefix = "local.session."
)

// UserStore is the durable backing for a local provider, so the user table
// and live sessions survive across roster processes on the same machine.
// *storage.Store satisfies it.
type UserStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// LocalProvider implements the provider operations against a local user
// table, for air-gapped deployments where no identity service is reachable.
// Second-factor codes are TOTP, validated locally against secrets enrolled
// on this machine.
//
// It satisfies the same interface as Client and returns the same error
// sentinels, so the rest of the client cannot tell the two apart.
type LocalProvider struct {
	mu       sync.Mutex
	store    UserStore                // nil = in-memory only
	users    map[string]*localUser    // keyed by username
	sessions map[string]*localSession // keyed by token
	pendings map[string]*localPending // keyed by pending token
}

type localUser struct {
	principal  Principal
	salt       []byte
	secretHash []byte
	totpSecret string // base32; empty = no second factor
}

type localSession struct {
	principalID string
	expiresAt   time.Time
}

type localPending struct {
	username  string
	expiresAt time.Time
}

// NewLocalProvider creates an empty in-memory local provider. State is lost
// when the process exits; deployments use OpenLocalProvider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		users:    make(map[string]*localUser),
		sessions: make(map[string]*localSession),
		pendings: make(map[string]*localPending),
	}
}

// OpenLocalProvider creates a local provider backed by store, loading the
// persisted user table and any still-live sessions. Expired sessions found
// during load are removed. Pending second-factor sign-ins are never
// persisted; they live and die within one process.
func OpenLocalProvider(store UserStore) (*LocalProvider, error) {
	p := NewLocalProvider()
	p.store = store

	userKeys, err := store.Keys(localUserKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load local user table: %w", err)
	}
	for _, key := range userKeys {
		raw, ok, err := store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load local user %q: %w", key, err)
		}
		if !ok {
			continue
		}
		user, err := decodeLocalUser(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt local user record %q: %w", key, err)
		}
		p.users[user.principal.Username] = user
	}

	sessionKeys, err := store.Keys(localSessionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load local sessions: %w", err)
	}
	now := time.Now()
	for _, key := range sessionKeys {
		raw, ok, err := store.Get(key)
		if err != nil || !ok {
			continue
		}
		var stored storedLocalSession
		if err := json.Unmarshal([]byte(raw), &stored); err != nil || now.After(stored.ExpiresAt) {
			store.Remove(key)
			continue
		}
		p.sessions[key[len(localSessionKeyPrefix):]] = &localSession{
			principalID: stored.PrincipalID,
			expiresAt:   stored.ExpiresAt,
		}
	}

	return p, nil
}

// AddUser enrolls a user. totpSecret may be empty for accounts without a
// second factor.
func (p *LocalProvider) AddUser(principal Principal, secret, totpSecret string) error {
	if principal.Username == "" || principal.ID == "" || secret == "" {
		return fmt.Errorf("principal id, username, and secret are required")
	}
	if !principal.Role.Valid() {
		return fmt.Errorf("invalid role %q", principal.Role)
	}

	salt := make([]byte, localSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	user := &localUser{
		principal:  principal,
		salt:       salt,
		secretHash: pbkdf2.Key([]byte(secret), salt, localPBKDF2Iterations, localHashSize, sha256.New),
		totpSecret: totpSecret,
	}
	if err := p.persistUserLocked(user); err != nil {
		return err
	}
	p.users[principal.Username] = user
	return nil
}

// EnrollTOTP generates and stores a TOTP secret for a user, returning the
// base32 secret for transfer to the user's authenticator.
func (p *LocalProvider) EnrollTOTP(issuer, username string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[username]
	if !ok {
		return "", fmt.Errorf("unknown user %q", username)
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: username})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	previous := user.totpSecret
	user.totpSecret = key.Secret()
	if err := p.persistUserLocked(user); err != nil {
		user.totpSecret = previous
		return "", err
	}
	return key.Secret(), nil
}

// =============================================================================
// PROVIDER OPERATIONS
// =============================================================================

// SignIn checks the primary credentials against the local table.
func (p *LocalProvider) SignIn(ctx context.Context, identifier, secret string) (*SignInResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[identifier]
	if !ok || !user.matches(secret) {
		return nil, ErrRejectedCredentials
	}

	if user.totpSecret != "" {
		token, err := newToken(pendingTokenPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		p.pendings[token] = &localPending{
			username:  identifier,
			expiresAt: time.Now().Add(localPendingDuration),
		}
		return &SignInResult{
			PrincipalID:          user.principal.ID,
			Role:                 user.principal.Role,
			SecondFactorRequired: true,
			PendingToken:         token,
		}, nil
	}

	return p.mintLocked(user)
}

// VerifyCode validates a TOTP code for a pending sign-in. The pending token
// is consumed whether or not the code matches.
func (p *LocalProvider) VerifyCode(ctx context.Context, pendingToken, code string) (*SignInResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.pendings[pendingToken]
	if !ok {
		return nil, ErrRejectedCode
	}
	delete(p.pendings, pendingToken)

	if time.Now().After(pending.expiresAt) {
		return nil, ErrRejectedCode
	}

	user, ok := p.users[pending.username]
	if !ok || !totp.Validate(code, user.totpSecret) {
		return nil, ErrRejectedCode
	}

	return p.mintLocked(user)
}

// SignOut invalidates a session token.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropSessionLocked(token)
	return nil
}

// GetSession introspects a session token.
func (p *LocalProvider) GetSession(ctx context.Context, token string) (*SessionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[token]
	if !ok {
		return nil, ErrSessionInvalid
	}
	if time.Now().After(session.expiresAt) {
		p.dropSessionLocked(token)
		return nil, ErrSessionInvalid
	}
	return &SessionInfo{Token: token, ExpiresAt: session.expiresAt}, nil
}

// GetUser returns the profile behind a session token.
func (p *LocalProvider) GetUser(ctx context.Context, token string) (*Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[token]
	if !ok {
		return nil, ErrProfileLookup
	}
	for _, user := range p.users {
		if user.principal.ID == session.principalID {
			principal := user.principal
			return &principal, nil
		}
	}
	return nil, ErrProfileLookup
}

// ResetPasswordRequest is unsupported locally; passwords are reset by an
// administrator editing the user table.
func (p *LocalProvider) ResetPasswordRequest(ctx context.Context, email string) error {
	return fmt.Errorf("%w: password reset requires the remote provider", ErrProviderUnavailable)
}

// UpdatePassword changes the password behind an authenticated session.
func (p *LocalProvider) UpdatePassword(ctx context.Context, token, newSecret string) error {
	if newSecret == "" {
		return ErrRejectedCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[token]
	if !ok {
		return ErrSessionInvalid
	}

	for _, user := range p.users {
		if user.principal.ID != session.principalID {
			continue
		}
		salt := make([]byte, localSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		previousSalt, previousHash := user.salt, user.secretHash
		user.salt = salt
		user.secretHash = pbkdf2.Key([]byte(newSecret), salt, localPBKDF2Iterations, localHashSize, sha256.New)
		if err := p.persistUserLocked(user); err != nil {
			user.salt, user.secretHash = previousSalt, previousHash
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil
	}
	return ErrSessionInvalid
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// storedLocalUser is the durable form of a user record. Only the PBKDF2
// digest of the password is stored, never the password.
type storedLocalUser struct {
	Principal  Principal `json:"principal"`
	Salt       string    `json:"salt"`
	SecretHash string    `json:"secret_hash"`
	TOTPSecret string    `json:"totp_secret,omitempty"`
}

// storedLocalSession is the durable form of a live session.
type storedLocalSession struct {
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func decodeLocalUser(raw string) (*localUser, error) {
	var stored storedLocalUser
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("bad salt: %w", err)
	}
	hash, err := hex.DecodeString(stored.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("bad secret hash: %w", err)
	}
	if stored.Principal.Username == "" || !stored.Principal.Role.Valid() {
		return nil, fmt.Errorf("incomplete principal")
	}
	return &localUser{
		principal:  stored.Principal,
		salt:       salt,
		secretHash: hash,
		totpSecret: stored.TOTPSecret,
	}, nil
}

// persistUserLocked writes a user record through to the backing store.
// Caller holds p.mu.
func (p *LocalProvider) persistUserLocked(user *localUser) error {
	if p.store == nil {
		return nil
	}
	raw, err := json.Marshal(storedLocalUser{
		Principal:  user.principal,
		Salt:       hex.EncodeToString(user.salt),
		SecretHash: hex.EncodeToString(user.secretHash),
		TOTPSecret: user.totpSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to encode user record: %w", err)
	}
	return p.store.Set(localUserKeyPrefix+user.principal.Username, string(raw))
}

// persistSessionLocked writes a session through to the backing store.
// Caller holds p.mu.
func (p *LocalProvider) persistSessionLocked(token string, session *localSession) error {
	if p.store == nil {
		return nil
	}
	raw, err := json.Marshal(storedLocalSession{
		PrincipalID: session.principalID,
		ExpiresAt:   session.expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	return p.store.Set(localSessionKeyPrefix+token, string(raw))
}

// dropSessionLocked removes a session from memory and the backing store.
// Caller holds p.mu.
func (p *LocalProvider) dropSessionLocked(token string) {
	delete(p.sessions, token)
	if p.store != nil {
		p.store.Remove(localSessionKeyPrefix + token)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// matches checks a password in constant time.
func (u *localUser) matches(secret string) bool {
	candidate := pbkdf2.Key([]byte(secret), u.salt, localPBKDF2Iterations, localHashSize, sha256.New)
	return hmac.Equal(candidate, u.secretHash)
}

// mintLocked creates a session for user. Caller holds p.mu.
func (p *LocalProvider) mintLocked(user *localUser) (*SignInResult, error) {
	token, err := newToken(sessionTokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	expires := time.Now().Add(localSessionDuration)
	session := &localSession{
		principalID: user.principal.ID,
		expiresAt:   expires,
	}
	if err := p.persistSessionLocked(token, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	p.sessions[token] = session
	return &SignInResult{
		PrincipalID: user.principal.ID,
		Role:        user.principal.Role,
		Token:       token,
		ExpiresAt:   expires,
	}, nil
}

// newToken creates a cryptographically random token: <prefix><32 hex chars>.
func newToken(prefix string) (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("cryptographic random generation failed: %w", err)
	}
	return prefix + hex.EncodeToString(bytes), nil
}
