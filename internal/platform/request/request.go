// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package requestutil provides utilities for extracting data from HTTP requests.

It abstracts away common body decoding and header parsing patterns, ensuring
consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/haii/authcore/internal/platform/constants"
	"github.com/haii/authcore/internal/platform/validate"
)

// maxBodyBytes bounds every JSON body decoded by [DecodeJSON].
const maxBodyBytes = 1 << 20

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
DecodeOptionalJSON is [DecodeJSON] for endpoints whose body may be empty.
An empty body leaves target untouched.
*/
func DecodeOptionalJSON(request *http.Request, target interface{}) error {
	if request.Body == nil || request.ContentLength == 0 {
		return nil
	}

	decoder := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil && err != io.EOF {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
BearerToken returns the credential from an "Authorization: Bearer <token>" header.

Returns:
  - string: the raw token, empty when absent
  - bool: false when the header is present but not a bearer credential
*/
func BearerToken(request *http.Request) (string, bool) {
	header := strings.TrimSpace(request.Header.Get(constants.HeaderAuthorization))
	if header == "" {
		return "", true
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

/*
Cookie returns the value of the named cookie, or an empty string when absent.
*/
func Cookie(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
