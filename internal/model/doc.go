// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the arkiv client.
//
// # Key Types
//
//   - Message: a single chat turn (user or assistant, optionally an error)
//   - Chat: a persisted conversation snapshot in the history index
//   - ChatID: millisecond-timestamp identifier for a chat
//   - User: the signed-in identity as reported by the identity provider
//   - APIKey: a user-supplied model API key (BYOK)
//
// # Usage
//
//	chat := model.Chat{ID: model.NewChatID(), Messages: msgs}
//	chat.Title = model.DeriveTitle(chat.Messages)
package model
