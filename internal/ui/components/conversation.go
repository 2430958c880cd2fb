// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// EmptyConversationHint is shown before the first question.
const EmptyConversationHint = "Upload documents, then ask anything about them."

// Conversation renders the turns of a chat for the message viewport.
type Conversation struct {
	theme *styles.Theme
	md    *Markdown
}

// NewConversation creates a renderer.
func NewConversation(theme *styles.Theme, md *Markdown) *Conversation {
	return &Conversation{theme: theme, md: md}
}

// Render renders msgs in width cells. thinking, when non-empty, is appended
// as the pending assistant turn (spinner plus text).
func (c *Conversation) Render(msgs []model.Message, thinking string, width int) string {
	t := c.theme
	if len(msgs) == 0 && thinking == "" {
		return t.Muted.Render(EmptyConversationHint)
	}

	body := width - 2
	parts := make([]string, 0, len(msgs)+1)
	for _, m := range msgs {
		parts = append(parts, c.renderTurn(m, body))
	}
	if thinking != "" {
		parts = append(parts, t.AssistantLabel.Render(model.RoleAssistant.DisplayName())+"\n"+thinking)
	}
	return strings.Join(parts, "\n\n")
}

func (c *Conversation) renderTurn(m model.Message, width int) string {
	t := c.theme
	switch {
	case m.IsUser():
		return t.UserLabel.Render(m.Role.DisplayName()) + "\n" +
			t.UserTurn.Width(width).Render(m.Content)
	case m.IsError:
		return t.AssistantLabel.Render(m.Role.DisplayName()) + "\n" +
			t.ErrorTurn.Width(width).Render(styles.StatusIndicators.Error+" "+m.Content)
	default:
		return t.AssistantLabel.Render(m.Role.DisplayName()) + "\n" +
			t.AssistantTurn.Render(c.md.Render(m.Content, width-1))
	}
}
