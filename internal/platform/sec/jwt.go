// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and credential encoding.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, JWT signing, secret
// generation) from the domain logic. It acts as an infrastructure service injected
// into the session and auth packages through their constructors.
package sec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidCredential is the only error [Codec.Decode] returns. It never reveals
// whether the signature, structure, or expiry was at fault.
var ErrInvalidCredential = errors.New("sec: invalid credential")

// AuthClaims represents the payload embedded inside a bearer credential.
//
// # Why custom claims?
//
// Embedding the browser session and activity window ids lets the resolver
// cross-check the bearer against the persisted session on every request.
type AuthClaims struct {
	jwt.RegisteredClaims

	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	WindowID  string `json:"lsid,omitempty"`
	Guest     bool   `json:"guest"`
}

// Subject is the identity the credential was minted for.
type Subject struct {
	ID    string
	Role  UserRole
	Guest bool
}

// Codec handles generation and verification of HMAC-signed bearer credentials.
type Codec struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	timeToLive time.Duration
	now        func() time.Time
}

// NewCodec creates a Codec for one of HS256, HS384 or HS512.
func NewCodec(secret, algorithm string, timeToLive time.Duration) (*Codec, error) {
	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("sec: unsupported signing algorithm %q", algorithm)
	}

	if secret == "" {
		return nil, errors.New("sec: signing secret must not be empty")
	}

	return &Codec{
		secret:     []byte(secret),
		method:     method,
		timeToLive: timeToLive,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the codec reading time from now.
func (codec *Codec) WithClock(now func() time.Time) *Codec {
	clone := *codec
	clone.now = now
	return &clone
}

// TimeToLive is the lifetime of every credential this codec mints.
func (codec *Codec) TimeToLive() time.Duration {
	return codec.timeToLive
}

// Encode mints a bearer credential for subject. Empty sessionID or windowID
// omit the corresponding claim.
func (codec *Codec) Encode(subject Subject, sessionID, windowID string) (string, time.Time, error) {
	issuedAt := codec.now().UTC()
	expiresAt := issuedAt.Add(codec.timeToLive)

	tokenID, err := ulid.New(ulid.Timestamp(issuedAt), rand.Reader)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to generate token id: %w", err)
	}

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      string(subject.Role),
		SessionID: sessionID,
		WindowID:  windowID,
		Guest:     subject.Guest,
	}

	signed, err := jwt.NewWithClaims(codec.method, claims).SignedString(codec.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Decode checks the signature, algorithm and time claims of a credential.
func (codec *Codec) Decode(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return codec.secret, nil
	},
		jwt.WithValidMethods([]string{codec.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(codec.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}

	if claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	return claims, nil
}
