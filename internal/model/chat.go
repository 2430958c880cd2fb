// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/arkiv-tui/internal/util"
)

// TitleLength is the number of characters of the first question kept in a
// chat title.
const TitleLength = 30

// DefaultTitle names a chat that has no user message yet.
const DefaultTitle = "New Chat"

// TimeLayout is the clock format stored in Chat.Time.
const TimeLayout = "15:04"

// =============================================================================
// CHAT ID
// =============================================================================

// ChatID identifies a chat. It is a millisecond timestamp; zero means no chat.
type ChatID int64

var (
	idMu   sync.Mutex
	lastID ChatID
)

// NewChatID returns a fresh id derived from the wall clock. Ids handed out by
// one process are strictly increasing.
func NewChatID() ChatID {
	return NewChatIDAt(time.Now())
}

// NewChatIDAt is NewChatID with an explicit clock reading.
func NewChatIDAt(t time.Time) ChatID {
	idMu.Lock()
	defer idMu.Unlock()

	id := ChatID(t.UnixMilli())
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return id
}

// IsZero reports whether the id is unset.
func (id ChatID) IsZero() bool {
	return id == 0
}

// String renders the id as a decimal number.
func (id ChatID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseChatID parses a decimal chat id.
func ParseChatID(s string) (ChatID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ChatID(n), nil
}

// CreatedAt recovers the creation time encoded in the id.
func (id ChatID) CreatedAt() time.Time {
	return time.UnixMilli(int64(id))
}

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a history entry: a snapshot of one conversation.
type Chat struct {
	ID       ChatID    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Files    []string  `json:"files"`
	Time     string    `json:"time"`
	Tokens   int       `json:"tokens,omitempty"`
}

// DeriveTitle builds a chat title from the first user message: its first
// TitleLength UTF-16 code units followed by "...". Chats without a user message
// are titled DefaultTitle.
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.IsUser() {
			return util.PrefixUTF16(m.Content, TitleLength) + "..."
		}
	}
	return DefaultTitle
}

// Clone returns a deep copy so callers can mutate the result freely.
func (c Chat) Clone() Chat {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Files = append([]string(nil), c.Files...)
	return out
}

// UserMessageCount counts the questions asked in the chat.
func (c Chat) UserMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsUser() {
			n++
		}
	}
	return n
}
