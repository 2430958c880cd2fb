// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the building blocks of the Arkiv screens.
//
// Components hold render state only. They never call the backend; the
// application model feeds them snapshots and forwards the keys they care
// about.
//
//   - Header: token usage, snow toggle and the key selector
//   - Sidebar: documents pane and chat history pane
//   - Conversation and Markdown: chat turns, glamour or chroma rendering
//   - ToastManager: auto-dismissing notifications
//   - Snow: the decorative snowfall band
package components
