// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the arkiv client.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation for terminal cells
//   - PadRight: width-aware padding for aligned columns
//
// Formatting:
//   - FormatCount: thousands-separated counters ("12,480")
//   - FormatBytes: human readable file sizes
//   - FormatAge: relative times for history entries
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
