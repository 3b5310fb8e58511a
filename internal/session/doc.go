// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the authenticated identity and keeps it consistent
// with token liveness.
//
// # Key Types
//
//   - Identity: the signed-in user plus bearer token
//   - Store: holds the current Identity and its "user" snapshot
//   - Supervisor: periodic and event-driven token expiry enforcement
//   - ResetMsg: Bubble Tea message sent when the session is torn down
//
// # Usage
//
// Wire the stores, then run the supervisor for the lifetime of the UI:
//
//	conv := conversation.NewStore(kv)
//	conv.Initialize()
//	sessions := session.NewStore(kv, conv)
//	sessions.Initialize()
//
//	sup := session.NewSupervisor(sessions, conv, session.DefaultSupervisorConfig())
//	sup.OnReset(controller.Reset)
//	sup.Start(ctx)
//	defer sup.Stop()
//
// # Invariants
//
// Logout always deletes the "user" snapshot and clears the conversation
// (which deletes the "chat-storage" snapshot). Logout on an absent identity
// changes nothing observable.
package session
