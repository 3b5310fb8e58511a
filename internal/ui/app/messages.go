// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"time"

	"github.com/jeranaias/askchat/internal/chat"
)

// answerMsg carries the outcome of a submission.
type answerMsg struct {
	result chat.Result
}

// savedChatsMsg reports that saved-chats visibility changed.
type savedChatsMsg struct {
	visible bool
}

// authResultMsg reports a finished login or registration.
type authResultMsg struct {
	err error
}

// statusTickMsg refreshes the session countdown in the navbar.
type statusTickMsg time.Time
