// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the ordered question/answer turns of the current
// session and mirrors them to the "chat-storage" snapshot.
//
// # Key Types
//
//   - Turn: one question with its answer
//   - Store: the in-memory conversation with write-through persistence
//
// # Usage
//
//	conv := conversation.NewStore(kv)
//	conv.Initialize()
//	conv.AddMessage(conversation.Turn{Question: "What is X?", Answer: "X is Y"})
//	fmt.Print(conv.ExportMarkdown())
//	conv.ClearConversation()
//
// # Persistence
//
// Every mutation is applied in memory and then persisted in the same call:
// appends rewrite the whole snapshot, clears delete it. The snapshot is
// wrapped in a versioned envelope; envelopes with another version are
// ignored on load.
package conversation
