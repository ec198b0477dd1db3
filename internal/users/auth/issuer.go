// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"

	"github.com/haii/authcore/internal/platform/constants"
	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/internal/users/session"
)

// TokenBundle is the credential set returned by every issuing endpoint.
type TokenBundle struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken *string           `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int               `json:"expires_in"`
	SessionID    string            `json:"session_id,omitempty"`
	WindowID     string            `json:"activity_window_id,omitempty"`
	User         *account.Identity `json:"user"`
}

// IssueOptions selects what [Issuer.Issue] embeds and returns.
type IssueOptions struct {
	IncludeRefresh bool
	SessionID      string
	WindowID       string
}

// Issuer composes the bearer codec with refresh secret storage.
type Issuer struct {
	codec       *sec.Codec
	credentials *session.Credentials
}

// NewIssuer constructs the issuer.
func NewIssuer(codec *sec.Codec, credentials *session.Credentials) *Issuer {
	return &Issuer{codec: codec, credentials: credentials}
}

/*
Issue mints a bearer credential and, when asked, a refresh secret persisted in
tx. Guests never receive a refresh secret, whatever the options say.

Parameters:
  - context: context.Context
  - tx: session.Tx
  - identity: *account.Identity
  - options: IssueOptions

Returns:
  - *TokenBundle: Credentials for the response body
  - error: Signing or persistence failures
*/
func (issuer *Issuer) Issue(context context.Context, tx session.Tx, identity *account.Identity, options IssueOptions) (*TokenBundle, error) {
	accessToken, _, err := issuer.codec.Encode(identity.Subject(), options.SessionID, options.WindowID)
	if err != nil {
		return nil, fmt.Errorf("issuer_encode_failed: %w", err)
	}

	bundle := &TokenBundle{
		AccessToken: accessToken,
		TokenType:   constants.TokenTypeBearer,
		ExpiresIn:   int(issuer.codec.TimeToLive().Seconds()),
		SessionID:   options.SessionID,
		WindowID:    options.WindowID,
		User:        identity,
	}

	if options.IncludeRefresh && !identity.IsGuest {
		secret, _, err := issuer.credentials.Issue(context, tx, identity.ID)
		if err != nil {
			return nil, err
		}
		bundle.RefreshToken = &secret
	}

	return bundle, nil
}
