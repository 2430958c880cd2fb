// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

func testTheme() *styles.Theme {
	return styles.NewTheme("dark")
}

// =============================================================================
// TOASTS
// =============================================================================

func TestToastExpiry(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	m := NewToastManager()
	m.SetClock(func() time.Time { return now })

	m.Success("Key removed")
	errID := m.Error("Upload failed")
	require.Len(t, m.Toasts(), 2)
	assert.Equal(t, errID, m.Toasts()[0].ID, "newest first")

	now = now.Add(DefaultToastDuration)
	left := m.Tick()
	require.Len(t, left, 1)
	assert.Equal(t, ToastError, left[0].Kind)

	now = now.Add(ErrorToastDuration)
	assert.Empty(t, m.Tick())
}

func TestToastLimitAndDismiss(t *testing.T) {
	m := NewToastManager()
	var ids []int
	for i := 0; i < maxToasts+2; i++ {
		ids = append(ids, m.Status("note"))
	}
	require.Len(t, m.Toasts(), maxToasts)

	m.Dismiss(ids[len(ids)-1])
	assert.Len(t, m.Toasts(), maxToasts-1)
	m.DismissAll()
	assert.Empty(t, m.Toasts())
}

func TestRenderToastStack(t *testing.T) {
	assert.Empty(t, RenderToastStack(nil, 80))
	out := RenderToastStack([]Toast{{Message: "Key verified successfully!", Kind: ToastSuccess}}, 80)
	assert.Contains(t, out, "Key verified successfully!")
	assert.Contains(t, out, styles.StatusIndicators.Success)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 80)
	}
}

// =============================================================================
// HEADER
// =============================================================================

func TestHeaderSelector(t *testing.T) {
	h := NewHeader(testTheme())
	h.Width = 100
	h.Tokens = 12480
	assert.Contains(t, h.View(), "12,480")
	assert.NotContains(t, h.View(), DefaultKeyLabel, "selector hidden without keys")

	h.Keys = []model.APIKey{{ID: "a", Key: "AIza-one"}, {ID: "b", Key: "AIza-two"}}
	assert.Equal(t, 0, h.ActiveIndex())
	assert.Equal(t, "AIza-one", h.NextKey())

	h.Active = "AIza-two"
	assert.Equal(t, 2, h.ActiveIndex())
	assert.Equal(t, "", h.NextKey(), "wraps to default")

	h.Active = "AIza-gone"
	assert.Equal(t, 0, h.ActiveIndex())

	view := h.View()
	assert.Contains(t, view, DefaultKeyLabel)
	assert.Contains(t, view, "Key 2")
	assert.NotContains(t, view, "AIza", "key values never shown")
}

func TestHeaderKeyAt(t *testing.T) {
	h := NewHeader(testTheme())
	h.Keys = []model.APIKey{{Key: "k1"}}
	k, ok := h.KeyAt(0)
	assert.True(t, ok)
	assert.Empty(t, k)
	k, ok = h.KeyAt(1)
	assert.True(t, ok)
	assert.Equal(t, "k1", k)
	_, ok = h.KeyAt(2)
	assert.False(t, ok)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func TestSidebarCursor(t *testing.T) {
	s := NewSidebar(testTheme())
	s.Focused = true
	s.SetSnapshot(chat.Snapshot{
		Staged:  []chat.StagedFile{{Name: "a.pdf", Size: 2048}, {Name: "b.txt", Size: 10}},
		History: []model.Chat{{ID: 1, Title: "First", Time: "09:00"}},
	})

	i, ok := s.SelectedStaged()
	require.True(t, ok)
	assert.Equal(t, 0, i)
	s.Down()
	s.Down()
	assert.Equal(t, 1, s.Cursor())
	_, ok = s.SelectedChat()
	assert.False(t, ok)

	s.Toggle()
	assert.Equal(t, PaneHistory, s.Pane)
	c, ok := s.SelectedChat()
	require.True(t, ok)
	assert.Equal(t, "First", c.Title)

	s.SetSnapshot(chat.Snapshot{})
	_, ok = s.SelectedChat()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Cursor())
}

func TestSidebarView(t *testing.T) {
	s := NewSidebar(testTheme())
	s.Width = 34
	s.DropDir = "/tmp/inbox"
	s.SetSnapshot(chat.Snapshot{
		Ready:     true,
		Staged:    []chat.StagedFile{{Name: "report.pdf", Size: 2048}},
		Processed: []string{"notes.md"},
	})
	view := s.View()
	assert.Contains(t, view, "report.pdf")
	assert.Contains(t, view, "2.0 kB")
	assert.Contains(t, view, "notes.md")
	assert.Contains(t, view, "ready")

	s.ShowHistory()
	assert.Contains(t, s.View(), "No chats yet")
}

// =============================================================================
// CONVERSATION
// =============================================================================

func TestConversationRender(t *testing.T) {
	c := NewConversation(testTheme(), NewMarkdown("dark", false))
	assert.Contains(t, c.Render(nil, "", 60), EmptyConversationHint)

	out := c.Render([]model.Message{
		model.NewUserMessage("What is in the report?"),
		model.NewAssistantMessage("Revenue grew."),
		model.NewErrorMessage("Failed to get response"),
	}, "thinking", 60)
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "What is in the report?")
	assert.Contains(t, out, "Revenue grew.")
	assert.Contains(t, out, styles.StatusIndicators.Error+" Failed to get response")
	assert.Contains(t, out, "thinking")
}

func TestPlainRenderHighlightsCode(t *testing.T) {
	out := PlainRender("Intro\n```go\nfunc main() {}\n```\nOutro", 60)
	assert.Contains(t, out, "Intro")
	assert.Contains(t, out, "Outro")
	assert.Contains(t, out, "go")
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, "main")
}

func TestMarkdownGlamour(t *testing.T) {
	md := NewMarkdown("dark", true)
	out := md.Render("# Title\n\nSome **bold** text.", 60)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")
}

// =============================================================================
// SNOW
// =============================================================================

func TestSnowStaysInBand(t *testing.T) {
	s := NewSnow(testTheme(), 42)
	s.Width, s.Height = 40, 3
	for i := 0; i < 50; i++ {
		s.Step()
	}
	assert.Positive(t, s.Len())
	assert.LessOrEqual(t, s.Len(), maxFlakes)

	lines := strings.Split(s.View(), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, 40, lipgloss.Width(l))
	}

	s.Reset()
	assert.Zero(t, s.Len())
}
