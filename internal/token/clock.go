// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package token decides whether a bearer token is still live.
//
// Tokens are decoded without signature verification: the client only needs
// the exp claim to know when to log the user out. The server remains the
// authority on validity.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time { return time.Now() }

var parser = jwt.NewParser()

// IsExpired reports whether token is expired according to the wall clock.
// A token that cannot be decoded is treated as expired.
func IsExpired(token string) bool {
	return IsExpiredAt(token, time.Now())
}

// IsExpiredAt reports whether token is expired at now.
//
// A token is expired when it fails to decode, when its exp claim is not a
// number, or when exp is strictly before now. A token without an exp claim
// never expires on the client.
func IsExpiredAt(token string, now time.Time) bool {
	exp, ok, err := Expiry(token)
	if err != nil {
		return true
	}
	if !ok {
		return false
	}
	return exp.Before(now)
}

// Expiry decodes the exp claim of token. ok is false when the claim is absent.
//
// Only the payload segment is read: the header and signature may be missing
// or undecodable.
func Expiry(token string) (exp time.Time, ok bool, err error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return time.Time{}, false, fmt.Errorf("decode token: %w", jwt.ErrTokenMalformed)
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode token payload: %w", err)
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false, fmt.Errorf("decode token payload: %w", err)
	}
	if claims == nil {
		return time.Time{}, false, errors.New("decode token payload: not an object")
	}

	date, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode exp claim: %w", err)
	}
	if date == nil {
		return time.Time{}, false, nil
	}
	return date.Time, true, nil
}

// Remaining returns how long token stays live at now. Expired or malformed
// tokens return zero; tokens without exp return ok=false.
func Remaining(token string, now time.Time) (d time.Duration, ok bool) {
	exp, hasExp, err := Expiry(token)
	if err != nil {
		return 0, true
	}
	if !hasExp {
		return 0, false
	}
	if d = exp.Sub(now); d < 0 {
		d = 0
	}
	return d, true
}
