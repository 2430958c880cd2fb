// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/config"
	"github.com/jeranaias/arkiv-tui/internal/ui/components"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// =============================================================================
// CHAT SCREEN
// =============================================================================

type chatFocus int

const (
	focusOnInput chatFocus = iota
	focusOnSidebar
)

// snowRows is the height of the snowfall band.
const snowRows = 3

type chatScreen struct {
	theme   *styles.Theme
	header  *components.Header
	sidebar *components.Sidebar
	conv    *components.Conversation
	snow    *components.Snow

	input    textinput.Model
	viewport viewport.Model
	snap     chat.Snapshot
	focus    chatFocus

	width, height int
	sidebarWidth  int
	follow        bool
}

func newChatScreen(theme *styles.Theme, cfg *config.Config) *chatScreen {
	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 4000

	c := &chatScreen{
		theme:        theme,
		header:       components.NewHeader(theme),
		sidebar:      components.NewSidebar(theme),
		conv:         components.NewConversation(theme, components.NewMarkdown(theme.GlamourStyle(), cfg.UI.Markdown)),
		snow:         components.NewSnow(theme, 1),
		input:        in,
		viewport:     viewport.New(80, 20),
		sidebarWidth: cfg.UI.SidebarWidth,
		follow:       true,
	}
	c.header.Snow = cfg.UI.Snow
	c.snow.Height = snowRows
	c.input.Placeholder = c.snap.Placeholder()
	return c
}

// reset forgets the signed-out user's state.
func (c *chatScreen) reset() {
	c.snap = chat.Snapshot{}
	c.sidebar.SetSnapshot(c.snap)
	c.sidebar.UserName, c.sidebar.Email, c.sidebar.DropDir = "", "", ""
	c.header.Tokens = 0
	c.header.Keys, c.header.Active = nil, ""
	c.input.SetValue("")
	c.input.Placeholder = c.snap.Placeholder()
	c.viewport.SetContent("")
	c.focus = focusOnInput
	c.follow = true
}

// showSidebar reports whether the sidebar fits. On narrow terminals it is
// only shown while focused.
func (c *chatScreen) showSidebar() bool {
	if c.theme.GetLayoutMode() == styles.LayoutNarrow {
		return c.focus == focusOnSidebar
	}
	return true
}

func (c *chatScreen) resize(width, height int) {
	c.width, c.height = width, height
	c.header.Width = width
	c.snow.Width = width

	sw := 0
	if c.showSidebar() {
		sw = c.sidebarWidth
		if c.theme.GetLayoutMode() == styles.LayoutNarrow {
			sw = width
		}
	}
	c.sidebar.Width = sw
	main := max(width-sw, 10)

	top := lipgloss.Height(c.header.View())
	if c.header.Snow {
		top += snowRows
	}
	body := max(height-top, 4)
	c.sidebar.Height = body

	// Input box plus shortcut line.
	c.input.Width = max(main-6, 4)
	c.viewport.Width = main
	c.viewport.Height = max(body-4, 1)
}

func (c *chatScreen) focusInput() tea.Cmd {
	c.focus = focusOnInput
	c.sidebar.Focused = false
	return c.input.Focus()
}

func (c *chatScreen) focusSidebar() {
	c.focus = focusOnSidebar
	c.sidebar.Focused = true
	c.input.Blur()
}

func (c *chatScreen) updateInput(msg tea.Msg) tea.Cmd {
	if c.focus != focusOnInput {
		return nil
	}
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return cmd
}

// =============================================================================
// STATE
// =============================================================================

// refreshChat copies the store snapshot into the screen.
func (m *Model) refreshChat() {
	if m.ws == nil {
		return
	}
	snap := m.ws.store.Snapshot()
	c := m.chat
	grew := len(snap.Messages) != len(c.snap.Messages) || snap.Loading != c.snap.Loading
	c.snap = snap
	c.sidebar.SetSnapshot(snap)
	c.header.Tokens = snap.Tokens
	c.input.Placeholder = snap.Placeholder()
	m.settings.hasDocuments = snap.Ready
	if grew {
		c.follow = true
	}
	m.renderConversation()
}

func (m *Model) renderConversation() {
	c := m.chat
	thinking := ""
	if c.snap.Loading {
		thinking = m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking...")
	}
	c.viewport.SetContent(c.conv.Render(c.snap.Messages, thinking, c.viewport.Width))
	if c.follow {
		c.viewport.GotoBottom()
	}
}

// dropToast describes files the drop folder staged.
func dropToast(names []string) string {
	if len(names) == 1 {
		return "Staged " + names[0] + " from the drop folder"
	}
	return fmt.Sprintf("Staged %d files from the drop folder", len(names))
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) chatKey(msg tea.KeyMsg) tea.Cmd {
	c := m.chat
	if m.ws == nil {
		return nil
	}

	switch msg.String() {
	case "ctrl+n":
		return m.storeCall("new chat", "", func(ctx context.Context, s *chat.Store) error {
			return s.StartNewChat(ctx)
		})
	case "ctrl+h":
		c.sidebar.Toggle()
		c.focusSidebar()
		m.layout()
		return nil
	case "ctrl+u":
		return m.upload()
	case "ctrl+k":
		return m.selectKey(c.header.NextKey())
	case "ctrl+s":
		return m.openSettings()
	case "ctrl+t":
		return m.toggleSnow()
	case "pgup":
		c.follow = false
		c.viewport.HalfViewUp()
		return nil
	case "pgdown":
		c.viewport.HalfViewDown()
		c.follow = c.viewport.AtBottom()
		return nil
	case "esc":
		if c.snap.Loading {
			m.ws.store.Cancel()
			return nil
		}
		if c.focus == focusOnSidebar {
			cmd := c.focusInput()
			m.layout()
			return cmd
		}
		return nil
	case "tab":
		if c.focus == focusOnInput {
			c.focusSidebar()
			m.layout()
			return nil
		}
		cmd := c.focusInput()
		m.layout()
		return cmd
	}

	if c.focus == focusOnSidebar {
		return m.sidebarKey(msg)
	}
	if msg.Type == tea.KeyEnter {
		return m.submitInput()
	}
	return c.updateInput(msg)
}

func (m *Model) sidebarKey(msg tea.KeyMsg) tea.Cmd {
	sb := m.chat.sidebar
	switch msg.String() {
	case "up", "k":
		sb.Up()
	case "down", "j":
		sb.Down()
	case "enter":
		if ch, ok := sb.SelectedChat(); ok {
			cmd := m.storeCall("load chat", "", func(ctx context.Context, s *chat.Store) error {
				return s.LoadChat(ctx, ch)
			})
			return tea.Batch(cmd, m.chat.focusInput())
		}
	case "d", "delete", "backspace":
		if ch, ok := sb.SelectedChat(); ok {
			return m.storeCall("delete chat", "Chat deleted", func(ctx context.Context, s *chat.Store) error {
				return s.DeleteChat(ctx, ch.ID)
			})
		}
		if i, ok := sb.SelectedStaged(); ok {
			if err := m.ws.store.Unstage(i); err != nil {
				m.toasts.Error(err.Error())
			}
		}
	}
	return nil
}

// submitInput sends the question or runs a slash command.
func (m *Model) submitInput() tea.Cmd {
	c := m.chat
	text := strings.TrimSpace(c.input.Value())
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		c.input.SetValue("")
		return m.slashCommand(text)
	}
	if !c.snap.CanSend() {
		m.toasts.Warning(c.snap.Placeholder())
		return nil
	}
	c.input.SetValue("")
	c.follow = true
	store, ctx := m.ws.store, m.ctx
	return func() tea.Msg {
		_, err := store.Send(ctx, text)
		return result("ask", "", err)
	}
}

// storeCall runs fn against the open chat store.
func (m *Model) storeCall(op, ok string, fn func(ctx context.Context, s *chat.Store) error) tea.Cmd {
	store := m.ws.store
	return m.run(op, ok, func(ctx context.Context) error { return fn(ctx, store) })
}

func (m *Model) upload() tea.Cmd {
	if len(m.chat.snap.Staged) == 0 {
		m.toasts.Warning(chat.ErrNothingStaged.Error())
		return nil
	}
	store, ctx := m.ws.store, m.ctx
	return func() tea.Msg {
		res, err := store.Upload(ctx)
		if err != nil {
			return result("upload", "", err)
		}
		return result("upload", fmt.Sprintf("Processed %d file(s)", len(res.FilesProcessed)), nil)
	}
}

func (m *Model) selectKey(key string) tea.Cmd {
	if m.deps.Keys == nil {
		return nil
	}
	km := m.deps.Keys
	return m.run("select key", "", func(ctx context.Context) error {
		return km.Select(ctx, key)
	})
}

func (m *Model) toggleSnow() tea.Cmd {
	h := m.chat.header
	h.Snow = !h.Snow
	m.deps.Config.UI.Snow = h.Snow
	m.layout()
	if !h.Snow {
		m.chat.snow.Reset()
		return nil
	}
	return components.SnowTickCmd()
}

func (m *Model) openSettings() tea.Cmd {
	m.chat.input.Blur()
	m.screen = ScreenSettings
	return m.settings.open()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = "/add <paths>  /upload  /new  /history  /reset chat|all  /key <n>  /settings  /snow  /quit"

func (m *Model) slashCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/add":
		return m.stagePaths(args)
	case "/upload":
		return m.upload()
	case "/new":
		return m.storeCall("new chat", "", func(ctx context.Context, s *chat.Store) error {
			return s.StartNewChat(ctx)
		})
	case "/history":
		m.chat.sidebar.ShowHistory()
		m.chat.focusSidebar()
		m.layout()
		return nil
	case "/reset":
		scope, ok := chat.ScopeChat, "Chat documents cleared"
		if len(args) > 0 && (args[0] == "all" || args[0] == "global") {
			scope, ok = chat.ScopeGlobal, "Knowledge base cleared successfully!"
		}
		return m.storeCall("reset", ok, func(ctx context.Context, s *chat.Store) error {
			return s.ResetKnowledgeBase(ctx, scope)
		})
	case "/key":
		if len(args) == 0 {
			return m.selectKey(m.chat.header.NextKey())
		}
		var i int
		if _, err := fmt.Sscanf(args[0], "%d", &i); err != nil {
			m.toasts.Warning("Usage: /key <0-" + fmt.Sprint(len(m.chat.header.Keys)) + ">")
			return nil
		}
		key, ok := m.chat.header.KeyAt(i)
		if !ok {
			m.toasts.Warning("No key at position " + args[0])
			return nil
		}
		return m.selectKey(key)
	case "/settings":
		return m.openSettings()
	case "/snow":
		return m.toggleSnow()
	case "/help", "/?":
		m.toasts.Status(chatHelp)
		return nil
	case "/quit", "/exit":
		m.shutdown()
		return tea.Quit
	}
	m.toasts.Warning("Unknown command " + name + ". Try /help")
	return nil
}

// stagePaths stages files and the files directly inside directories.
func (m *Model) stagePaths(args []string) tea.Cmd {
	if len(args) == 0 {
		m.toasts.Warning("Usage: /add <file or folder>...")
		return nil
	}
	paths, unreadable := chat.ExpandPaths(args)
	for _, a := range unreadable {
		m.toasts.Error("Cannot read " + a)
	}
	added := m.ws.store.StageFiles(paths...)
	switch {
	case len(added) == 0 && len(paths) > 0:
		m.toasts.Warning("No supported files. PDF, Images, CSV, TXT, Markdown, Word, Excel, PowerPoint")
	case len(added) > 0:
		m.toasts.Status(fmt.Sprintf("Selected %d file(s)", len(added)))
	}
	m.chat.sidebar.Pane = components.PaneDocuments
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

func (m *Model) chatView() string {
	c := m.chat
	t := m.theme

	parts := []string{c.header.View()}
	if c.header.Snow {
		parts = append(parts, c.snow.View())
	}

	inputStyle := t.Input
	if c.focus == focusOnInput {
		inputStyle = t.InputFocused
	}
	if !c.snap.CanSend() {
		inputStyle = t.InputDisabled
	}
	mainCol := lipgloss.JoinVertical(lipgloss.Left,
		c.viewport.View(),
		inputStyle.Width(max(c.viewport.Width-2, 4)).Render(c.input.View()),
		m.chatShortcuts(),
	)

	if c.showSidebar() {
		if m.theme.GetLayoutMode() == styles.LayoutNarrow {
			parts = append(parts, c.sidebar.View())
		} else {
			parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, c.sidebar.View(), mainCol))
		}
	} else {
		parts = append(parts, mainCol)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) chatShortcuts() string {
	t := m.theme
	key := func(k, d string) string { return t.ShortcutKey.Render(k) + t.ShortcutDesc.Render(" "+d) }
	var parts []string
	if m.chat.snap.Loading {
		parts = append(parts, key("esc", "cancel"))
	} else {
		parts = append(parts, key("enter", "send"))
	}
	parts = append(parts,
		key("tab", "sidebar"),
		key("ctrl+n", "new chat"),
		key("ctrl+h", "history"),
		key("ctrl+s", "settings"),
	)
	if m.chat.focus == focusOnSidebar {
		parts = append(parts, key("d", "delete"))
	}
	return lipgloss.NewStyle().MaxWidth(m.chat.viewport.Width).Render(strings.Join(parts, "  "))
}
