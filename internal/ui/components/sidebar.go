// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// =============================================================================
// SIDEBAR
// =============================================================================

// SidebarPane selects what the sidebar lists.
type SidebarPane int

const (
	PaneDocuments SidebarPane = iota
	PaneHistory
)

// Sidebar lists either the documents of the conversation or the chat
// history. A cursor selects a staged file or a past chat.
type Sidebar struct {
	Pane    SidebarPane
	Focused bool
	Width   int
	Height  int

	DropDir  string
	UserName string
	Email    string

	snap   chat.Snapshot
	cursor int
	theme  *styles.Theme
}

// NewSidebar creates a sidebar showing documents.
func NewSidebar(theme *styles.Theme) *Sidebar {
	return &Sidebar{theme: theme, Width: 32}
}

// SetSnapshot replaces the data shown and keeps the cursor in range.
func (s *Sidebar) SetSnapshot(snap chat.Snapshot) {
	s.snap = snap
	s.clamp()
}

// Toggle switches between documents and history.
func (s *Sidebar) Toggle() {
	if s.Pane == PaneDocuments {
		s.Pane = PaneHistory
	} else {
		s.Pane = PaneDocuments
	}
	s.cursor = 0
}

// ShowHistory switches to the history pane.
func (s *Sidebar) ShowHistory() {
	s.Pane = PaneHistory
	s.clamp()
}

func (s *Sidebar) count() int {
	if s.Pane == PaneHistory {
		return len(s.snap.History)
	}
	return len(s.snap.Staged)
}

func (s *Sidebar) clamp() {
	if n := s.count(); s.cursor >= n {
		s.cursor = max(n-1, 0)
	}
}

// Up moves the cursor up.
func (s *Sidebar) Up() {
	if s.cursor > 0 {
		s.cursor--
	}
}

// Down moves the cursor down.
func (s *Sidebar) Down() {
	if s.cursor < s.count()-1 {
		s.cursor++
	}
}

// Cursor returns the selected row.
func (s *Sidebar) Cursor() int { return s.cursor }

// SelectedChat returns the chat under the cursor in the history pane.
func (s *Sidebar) SelectedChat() (model.Chat, bool) {
	if s.Pane != PaneHistory || s.cursor >= len(s.snap.History) {
		return model.Chat{}, false
	}
	return s.snap.History[s.cursor], true
}

// SelectedStaged returns the index of the staged file under the cursor.
func (s *Sidebar) SelectedStaged() (int, bool) {
	if s.Pane != PaneDocuments || s.cursor >= len(s.snap.Staged) {
		return 0, false
	}
	return s.cursor, true
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the sidebar.
func (s *Sidebar) View() string {
	t := s.theme
	inner := s.Width - t.Sidebar.GetHorizontalFrameSize()
	if inner < 8 {
		inner = 8
	}

	var b strings.Builder
	b.WriteString(t.Title.Render("Arkiv"))
	b.WriteString("\n")
	if s.snap.Ready {
		b.WriteString(t.ReadyBadge.Render(styles.StatusIndicators.Success + " ready"))
	} else {
		b.WriteString(t.NotReadyBadge.Render(styles.StatusIndicators.Pending + " no documents"))
	}
	b.WriteString("\n")

	if s.Pane == PaneHistory {
		s.renderHistory(&b, inner)
	} else {
		s.renderDocuments(&b, inner)
	}

	if s.UserName != "" {
		b.WriteString("\n")
		b.WriteString(t.SectionTitle.Render("Account"))
		b.WriteString("\n")
		b.WriteString(t.Item.Render(util.TruncateWidth(s.UserName, inner)))
		b.WriteString("\n")
		b.WriteString(t.FileMeta.Render(util.TruncateWidth(s.Email, inner)))
	}

	style := t.Sidebar
	if s.Focused {
		style = t.SidebarFocused
	}
	style = style.Width(s.Width - 1)
	if s.Height > 0 {
		style = style.Height(s.Height).MaxHeight(s.Height)
	}
	return style.Render(b.String())
}

func (s *Sidebar) renderDocuments(b *strings.Builder, width int) {
	t := s.theme
	b.WriteString(t.SectionTitle.Render("Documents"))
	b.WriteString("\n")
	if s.DropDir != "" {
		b.WriteString(t.FileMeta.Render(util.TruncateWidth("Drop files in "+s.DropDir, width)))
		b.WriteString("\n")
	}
	b.WriteString(t.FileMeta.Render(util.TruncateWidth("PDF, Images, CSV, TXT, Markdown,", width)))
	b.WriteString("\n")
	b.WriteString(t.FileMeta.Render(util.TruncateWidth("Word, Excel, PowerPoint", width)))
	b.WriteString("\n")

	if len(s.snap.Staged) > 0 {
		b.WriteString(t.SectionTitle.Render(fmt.Sprintf("Staged (%d)", len(s.snap.Staged))))
		b.WriteString("\n")
		for i, f := range s.snap.Staged {
			size := util.FormatBytes(f.Size)
			name := util.PadRight(f.Name, width-lipgloss.Width(size)-3)
			row := " " + name + " " + t.FileMeta.Render(size)
			b.WriteString(s.row(i, row))
			b.WriteString("\n")
		}
		if s.snap.Uploading {
			b.WriteString(t.ThinkingText.Render("Processing..."))
		} else {
			b.WriteString(t.ShortcutKey.Render("ctrl+u") + t.ShortcutDesc.Render(fmt.Sprintf(" process %d file(s)", len(s.snap.Staged))))
		}
		b.WriteString("\n")
	}

	if len(s.snap.Processed) > 0 {
		b.WriteString(t.SectionTitle.Render(fmt.Sprintf("Indexed (%d)", len(s.snap.Processed))))
		b.WriteString("\n")
		for _, name := range s.snap.Processed {
			b.WriteString(t.ReadyBadge.Render("+ "))
			b.WriteString(t.FileName.Render(util.TruncateWidth(name, width-2)))
			b.WriteString("\n")
		}
	}
}

func (s *Sidebar) renderHistory(b *strings.Builder, width int) {
	t := s.theme
	b.WriteString(t.SectionTitle.Render("Chat History"))
	b.WriteString("\n")
	if len(s.snap.History) == 0 {
		b.WriteString(t.Muted.Render("No chats yet"))
		b.WriteString("\n")
		return
	}
	for i, c := range s.snap.History {
		title := util.PadRight(c.Title, width-8)
		row := " " + title + " " + t.FileMeta.Render(c.Time)
		if c.ID == s.snap.ChatID {
			row = t.ItemActive.Render(">") + row[1:]
		}
		b.WriteString(s.row(i, row))
		b.WriteString("\n")
	}
}

func (s *Sidebar) row(i int, text string) string {
	if s.Focused && i == s.cursor {
		return s.theme.ItemSelected.Render(text)
	}
	return s.theme.Item.Render(text)
}
