// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the chat backend.
//
// It covers the four endpoints the client needs:
//
//	POST /auth/login        {email, password}           -> {user, token}
//	POST /auth/register     {username, email, password} -> {user, token}
//	POST /api/chat/ask      {question, token?}          -> {answer}
//	GET  /api/chat/history  Authorization: Bearer       -> [{id, messages}]
//
// Requests are throttled client-side, tagged with an X-Request-ID and logged
// by method and path only. Bodies and credentials never reach the log.
package api
