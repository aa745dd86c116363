// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/roster-tui/internal/identity"
	"github.com/jeranaias/roster-tui/internal/storage"
)

// Durable store keys. Each is independently readable; the write-both-or-
// neither contract is enforced here, not by the store.
const (
	keySessionToken   = "session.token"
	keySessionRefresh = "session.refresh_token"
	keySessionExpires = "session.expires_at"
	keyPrincipalID    = "principal.id"
	keyPrincipalUser  = "principal.username"
	keyPrincipalName  = "principal.display_name"
	keyPrincipalRole  = "principal.role"
)

// SC-28: tokens are encrypted at rest with AES-256-GCM. The key is derived
// from a random machine-local secret via PBKDF2-SHA-256.
const (
	encryptedPrefix  = "ENC:"
	keyFileSize      = 64 // 32-byte salt + 32-byte secret
	pbkdf2Iterations = 600000
	aesKeySize       = 32
)

// SessionStore persists the current principal and session token. The
// Orchestrator is its only writer. Reads tolerate malformed or partially
// written state, reporting "no session" instead of failing.
type SessionStore struct {
	store   *storage.Store
	keyPath string

	keyOnce sync.Once
	aesKey  []byte
	keyErr  error
}

// NewSessionStore creates a session store over the durable key-value store.
// keyPath locates the machine-local key file protecting tokens at rest; it
// is created on first use.
func NewSessionStore(store *storage.Store, keyPath string) *SessionStore {
	return &SessionStore{store: store, keyPath: keyPath}
}

// Write persists the session. All fields land in one transaction so a reader
// never observes a token without its principal.
func (s *SessionStore) Write(session *Session) error {
	if session == nil || session.Token == "" || session.Principal.ID == "" {
		return fmt.Errorf("%w: session requires token and principal", ErrValidation)
	}

	sealed, err := s.seal(session.Token)
	if err != nil {
		return fmt.Errorf("failed to protect token: %w", err)
	}
	sealedRefresh := ""
	if session.RefreshToken != "" {
		if sealedRefresh, err = s.seal(session.RefreshToken); err != nil {
			return fmt.Errorf("failed to protect refresh token: %w", err)
		}
	}

	expires := ""
	if !session.ExpiresAt.IsZero() {
		expires = session.ExpiresAt.UTC().Format(time.RFC3339)
	}

	return s.store.Update(func(tx *storage.Tx) error {
		pairs := map[string]string{
			keySessionToken:  sealed,
			keyPrincipalID:   session.Principal.ID,
			keyPrincipalUser: session.Principal.Username,
			keyPrincipalName: session.Principal.DisplayName,
			keyPrincipalRole: string(session.Principal.Role),
		}
		for k, v := range pairs {
			if err := tx.Set(k, v); err != nil {
				return err
			}
		}
		// Optional fields are removed when absent so stale values from a
		// previous session cannot leak into this one.
		if sealedRefresh != "" {
			if err := tx.Set(keySessionRefresh, sealedRefresh); err != nil {
				return err
			}
		} else if err := tx.Remove(keySessionRefresh); err != nil {
			return err
		}
		if expires != "" {
			return tx.Set(keySessionExpires, expires)
		}
		return tx.Remove(keySessionExpires)
	})
}

// Read returns the stored session, or nil when there is none. Malformed,
// partially written, or expired state reads as nil.
func (s *SessionStore) Read() *Session {
	sealed, ok, err := s.store.Get(keySessionToken)
	if err != nil || !ok {
		return nil
	}

	token, err := s.open(sealed)
	if err != nil || token == "" {
		// Undecryptable token: key rotated or state corrupted. Either way
		// there is no usable session.
		log.Printf("session store: discarding unreadable token: %v", err)
		return nil
	}

	principal := identity.Principal{}
	if principal.ID, ok = s.getOr(keyPrincipalID); !ok {
		return nil
	}
	role, ok := s.getOr(keyPrincipalRole)
	if !ok {
		return nil
	}
	principal.Role = identity.Role(role)
	if !principal.Role.Valid() {
		return nil
	}
	principal.Username, _ = s.getOr(keyPrincipalUser)
	principal.DisplayName, _ = s.getOr(keyPrincipalName)

	session := &Session{Token: token, Principal: principal}

	if raw, ok, _ := s.store.Get(keySessionRefresh); ok {
		if refresh, err := s.open(raw); err == nil {
			session.RefreshToken = refresh
		}
	}
	if raw, ok, _ := s.store.Get(keySessionExpires); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			session.ExpiresAt = t
		}
	}

	if session.Expired() {
		return nil
	}
	return session
}

// Clear removes every session key in one transaction. Clearing an empty
// store is harmless.
func (s *SessionStore) Clear() error {
	return s.store.Update(func(tx *storage.Tx) error {
		for _, key := range []string{
			keySessionToken, keySessionRefresh, keySessionExpires,
			keyPrincipalID, keyPrincipalUser, keyPrincipalName, keyPrincipalRole,
		} {
			if err := tx.Remove(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// getOr reads a key, collapsing errors and absence into a missing value.
func (s *SessionStore) getOr(key string) (string, bool) {
	v, ok, err := s.store.Get(key)
	if err != nil || !ok || v == "" {
		return "", false
	}
	return v, true
}

// =============================================================================
// TOKEN PROTECTION (SC-28)
// =============================================================================

// loadKey derives the AES key from the machine-local key file, creating the
// file on first use.
func (s *SessionStore) loadKey() ([]byte, error) {
	s.keyOnce.Do(func() {
		raw, err := os.ReadFile(s.keyPath)
		if errors.Is(err, os.ErrNotExist) {
			raw = make([]byte, keyFileSize)
			if _, err := rand.Read(raw); err != nil {
				s.keyErr = fmt.Errorf("failed to generate key material: %w", err)
				return
			}
			if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
				s.keyErr = fmt.Errorf("failed to create key directory: %w", err)
				return
			}
			if err := os.WriteFile(s.keyPath, raw, 0600); err != nil {
				s.keyErr = fmt.Errorf("failed to write key file: %w", err)
				return
			}
		} else if err != nil {
			s.keyErr = fmt.Errorf("failed to read key file: %w", err)
			return
		}

		if len(raw) != keyFileSize {
			s.keyErr = fmt.Errorf("key file %s has wrong size", s.keyPath)
			return
		}

		salt, secret := raw[:32], raw[32:]
		s.aesKey = pbkdf2.Key(secret, salt, pbkdf2Iterations, aesKeySize, sha256.New)
	})
	return s.aesKey, s.keyErr
}

// seal encrypts a token for storage: ENC:base64(nonce|ciphertext|tag).
func (s *SessionStore) seal(plaintext string) (string, error) {
	key, err := s.loadKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// open decrypts a sealed token. Unsealed values are rejected.
func (s *SessionStore) open(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return "", errors.New("stored token is not sealed")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid sealed token encoding: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", errors.New("sealed token too short")
	}

	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal token: %w", err)
	}
	return string(plaintext), nil
}
