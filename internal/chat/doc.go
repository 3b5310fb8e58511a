// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives the ask flow: it submits questions, shows loading,
// answer and error text, records answered turns in the conversation, and
// loads the user's saved chats on demand.
//
// A Controller cycles through Idle, Submitting and then Answered or Failed.
// Results that arrive after the session changed (logout, expiry, re-login)
// are dropped without touching the display or the conversation.
package chat
