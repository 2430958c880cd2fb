// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the conversation and document state of a signed-in
// user.
//
// A Store owns the active conversation (messages, loading flag, active chat
// id, token counter), the document workflow (staged files, upload flag,
// processed files, knowledge-base readiness) and the user's history index.
// Both front ends drive the same Store: the TUI subscribes to Snapshot
// updates, the CLI calls the blocking methods directly.
//
// # Key Types
//
//   - Store: conversation and upload state, safe for concurrent use
//   - Snapshot: immutable copy of the state delivered to subscribers
//   - StatsTracker: single goroutine that serializes usage-stat updates
//   - StagedFile: a local file waiting to be uploaded
//
// # Invariants
//
// A conversation is never dropped: StartNewChat and LoadChat persist the
// current messages before replacing them, and abort when that fails. Only
// one question and one upload can be in flight at a time. A reply that
// arrives after the user switched chats is written to the chat it belongs
// to.
package chat
