// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the session and authentication lifecycle.
package auth

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Audit event types recorded by this package.
const (
	EventLogin          = "AUTH_LOGIN"
	EventCodeVerify     = "AUTH_CODE_VERIFY"
	EventLogout         = "AUTH_LOGOUT"
	EventSessionExpired = "SESSION_EXPIRED"
	EventSessionRefresh = "SESSION_REFRESH"
	EventSessionRestore = "SESSION_RESTORE"
)

// AuditLogger appends authentication events to a log file. Events carry no
// secrets; tokens are sanitized before logging.
type AuditLogger struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// NewAuditLogger opens (creating if necessary) the audit log at path.
// A disabled logger discards events. A nil *AuditLogger is safe to use.
func NewAuditLogger(path string, enabled bool) (*AuditLogger, error) {
	if !enabled {
		return &AuditLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditLogger{file: f, enabled: true}, nil
}

// Log records an authentication event.
func (l *AuditLogger) Log(eventType, subject string, success bool, details string) {
	if l == nil || !l.enabled {
		return
	}

	outcome := "FAILURE"
	if success {
		outcome = "SUCCESS"
	}

	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	line := fmt.Sprintf("%s | %s | %s | subject=%s %s\n", timestamp, eventType, outcome, subject, details)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		// Audit failures must not be silent.
		log.Printf("AUDIT ERROR: failed to log %s: %v", eventType, err)
	}
}

// Close closes the underlying file. Safe on a nil or disabled logger.
func (l *AuditLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// sanitizeToken truncates a token for safe logging while keeping enough for
// correlation.
func sanitizeToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:4] + "..." + token[len(token)-4:]
}
