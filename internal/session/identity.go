// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// UserKey is the snapshot key for the persisted Identity.
const UserKey = "user"

// Identity is the authenticated user's profile plus bearer credential.
type Identity struct {
	ID       int64  `json:"id" validate:"gte=0"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token" validate:"required"`
}

var identityValidate = validator.New()

// Validate checks the fields a restored snapshot must carry.
func (i Identity) Validate() error {
	return identityValidate.Struct(i)
}

// DisplayName returns the username, falling back to the email.
func (i Identity) DisplayName() string {
	if i.Username != "" {
		return i.Username
	}
	return i.Email
}

// decodeIdentity parses a "user" snapshot. Anything that is not a JSON object
// with a token is rejected.
func decodeIdentity(data []byte) (*Identity, error) {
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decode identity snapshot: %w", err)
	}
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity snapshot: %w", err)
	}
	return &id, nil
}
