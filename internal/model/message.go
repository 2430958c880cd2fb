// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/jeranaias/arkiv-tui/internal/util"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Arkiv"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn of a conversation. Field names match the persisted
// history format.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// IsError marks an assistant turn that reports a failed request.
	IsError bool `json:"isError,omitempty"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewErrorMessage creates an assistant turn flagged as an error.
func NewErrorMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, IsError: true}
}

// IsUser returns true if this is a user message.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant message.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// EstimateTokens approximates the token count of text as ceil(len/4), with
// the length taken in UTF-16 code units.
func EstimateTokens(text string) int {
	n := util.UTF16Len(text)
	return (n + 3) / 4
}
