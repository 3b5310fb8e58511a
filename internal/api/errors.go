// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNetwork wraps transport failures: refused connections, timeouts,
	// cancelled contexts.
	ErrNetwork = errors.New("network error")

	// ErrInvalidResponse indicates a 2xx response whose body could not be
	// decoded.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrResponseTooLarge indicates the body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status int
	// Message is the server's "error" or "message" field, empty when the body
	// carried neither.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// Temporary reports whether retrying the request may succeed.
func (e *Error) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// errorBody covers both error shapes the backend uses: auth endpoints send
// {"message"}, chat endpoints send {"error"}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

// newError builds an *Error from a failed response body.
func newError(status int, body []byte) *Error {
	e := &Error{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return e
	}
	if s := rawString(eb.Error); s != "" {
		e.Message = s
	} else {
		e.Message = rawString(eb.Message)
	}
	return e
}

// rawString returns raw as a string if it is a JSON string.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// DisplayMessage maps err to the text shown to the user: the server's message
// verbatim when it sent one, fallback otherwise.
func DisplayMessage(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}
