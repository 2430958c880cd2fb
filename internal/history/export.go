// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders chats as a plain table for the CLI.
func FormatList(chats []model.Chat) string {
	if len(chats) == 0 {
		return "No chats yet.\n"
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 14) + " " + util.PadRight("Time", 6) + " " +
		util.PadRight("Msgs", 5) + " " + util.PadRight("Files", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 64) + "\n")

	for _, c := range chats {
		sb.WriteString(util.PadRight(c.ID.String(), 14) + " " +
			util.PadRight(c.Time, 6) + " " +
			util.PadRight(util.FormatCount(len(c.Messages)), 5) + " " +
			util.PadRight(util.FormatCount(len(c.Files)), 5) + " " +
			util.TruncateWidth(oneLine(c.Title), 36) + "\n")
	}
	return sb.String()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a chat as Markdown: title, metadata, then every
// turn under its speaker.
func ExportMarkdown(c model.Chat) string {
	var sb strings.Builder
	sb.WriteString("# " + oneLine(c.Title) + "\n\n")
	sb.WriteString("- Chat: " + c.ID.String() + "\n")
	sb.WriteString("- Started: " + c.ID.CreatedAt().Format("2006-01-02 15:04") + "\n")
	if c.Tokens > 0 {
		sb.WriteString("- Tokens: " + util.FormatCount(c.Tokens) + "\n")
	}
	if len(c.Files) > 0 {
		sb.WriteString("- Files: " + strings.Join(c.Files, ", ") + "\n")
	}
	sb.WriteString("\n---\n\n")

	for _, m := range c.Messages {
		label := "**" + m.Role.DisplayName() + "**"
		if m.IsError {
			label += " (error)"
		}
		sb.WriteString(label + ":\n\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON renders a chat as indented JSON in the persisted format.
func ExportJSON(c model.Chat) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
