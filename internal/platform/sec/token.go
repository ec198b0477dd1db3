// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	refreshSecretBytes = 48
	sessionIDBytes     = 32
)

// IssueRefreshSecret returns a random opaque secret and its expiry. Only the
// [HashToken] digest may ever be persisted.
func IssueRefreshSecret(now time.Time, timeToLive time.Duration) (string, time.Time, error) {
	secret, err := randomToken(refreshSecretBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	return secret, now.Add(timeToLive), nil
}

// HashToken is the deterministic digest used to store and look up refresh secrets.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewSessionID returns an unguessable browser session id.
func NewSessionID() (string, error) {
	return randomToken(sessionIDBytes)
}

func randomToken(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
