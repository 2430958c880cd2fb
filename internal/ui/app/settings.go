// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// =============================================================================
// TABS
// =============================================================================

type settingsTab int

const (
	tabGeneral settingsTab = iota
	tabSecurity
	tabAPIKeys
	tabBilling
	tabData
	tabAbout
	numTabs
)

var tabNames = [numTabs]string{"General", "Security", "API Keys", "Billing", "Data", "About"}

func (t settingsTab) String() string { return tabNames[t] }

// deleteConfirmWord must be typed to delete the account.
const deleteConfirmWord = "DELETE"

type settingsField int

const (
	inName settingsField = iota
	inEmail
	inPassword
	inConfirm
	inDelete
	inAPIKey
	numSettingsFields
)

// itemKind is one focusable row of a tab.
type itemKind int

const (
	itemInput itemKind = iota
	itemResetChat
	itemLogout
	itemDeleteAccount
	itemKey
	itemRefreshStats
	itemEraseAll
	itemChat
)

type settingsItem struct {
	kind  itemKind
	field settingsField
	index int
}

// pendingConfirm is a destructive action waiting for y/n.
type pendingConfirm struct {
	prompt string
	run    func() tea.Cmd
}

type settingsScreen struct {
	theme  *styles.Theme
	tab    settingsTab
	cursor int

	inputs  [numSettingsFields]textinput.Model
	user    model.User
	stats   chat.UsageStats
	keys    []model.APIKey
	active  string
	visible map[string]bool

	confirm      *pendingConfirm
	deleteArmed  bool
	limitReached bool
	hasDocuments bool
}

func newSettingsScreen(theme *styles.Theme) *settingsScreen {
	s := &settingsScreen{theme: theme, visible: map[string]bool{}}
	placeholders := [numSettingsFields]string{
		inName:     "Enter display name",
		inEmail:    "Enter new email",
		inPassword: "New password",
		inConfirm:  "Confirm new password",
		inDelete:   "Type DELETE",
		inAPIKey:   "Paste your Google Gemini API Key",
	}
	for i := range s.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		ti.Width = 36
		s.inputs[i] = ti
	}
	s.inputs[inPassword].EchoMode = textinput.EchoPassword
	s.inputs[inConfirm].EchoMode = textinput.EchoPassword
	s.inputs[inAPIKey].EchoMode = textinput.EchoPassword
	s.inputs[inDelete].CharLimit = len(deleteConfirmWord)
	return s
}

// setUser refreshes the profile shown. The name field is prefilled once.
func (s *settingsScreen) setUser(u model.User) {
	if s.user.ID != u.ID {
		s.inputs[inName].SetValue(u.DisplayName())
		s.inputs[inEmail].SetValue("")
	}
	s.user = u
}

// open resets the screen to its first tab.
func (s *settingsScreen) open() tea.Cmd {
	s.tab, s.cursor = tabGeneral, 0
	s.confirm, s.deleteArmed = nil, false
	return s.focus(nil)
}

// items lists the focusable rows of the current tab.
func (s *settingsScreen) items(history []model.Chat) []settingsItem {
	switch s.tab {
	case tabGeneral:
		return []settingsItem{
			{kind: itemInput, field: inName},
			{kind: itemInput, field: inEmail},
			{kind: itemResetChat},
		}
	case tabSecurity:
		items := []settingsItem{
			{kind: itemInput, field: inPassword},
			{kind: itemInput, field: inConfirm},
			{kind: itemLogout},
			{kind: itemDeleteAccount},
		}
		if s.deleteArmed {
			items = append(items, settingsItem{kind: itemInput, field: inDelete})
		}
		return items
	case tabAPIKeys:
		var items []settingsItem
		if !s.limitReached {
			items = append(items, settingsItem{kind: itemInput, field: inAPIKey})
		}
		for i := range s.keys {
			items = append(items, settingsItem{kind: itemKey, index: i})
		}
		return items
	case tabBilling:
		return []settingsItem{{kind: itemRefreshStats}}
	case tabData:
		items := []settingsItem{{kind: itemEraseAll}}
		for i := range history {
			items = append(items, settingsItem{kind: itemChat, index: i})
		}
		return items
	}
	return nil
}

// focus focuses the input under the cursor, if any.
func (s *settingsScreen) focus(history []model.Chat) tea.Cmd {
	for i := range s.inputs {
		s.inputs[i].Blur()
	}
	items := s.items(history)
	if s.cursor >= len(items) {
		s.cursor = max(len(items)-1, 0)
	}
	if len(items) > 0 && items[s.cursor].kind == itemInput {
		return s.inputs[items[s.cursor].field].Focus()
	}
	return nil
}

func (s *settingsScreen) current(history []model.Chat) (settingsItem, bool) {
	items := s.items(history)
	if s.cursor >= len(items) {
		return settingsItem{}, false
	}
	return items[s.cursor], true
}

func (s *settingsScreen) updateInput(msg tea.Msg) tea.Cmd {
	for i := range s.inputs {
		if s.inputs[i].Focused() {
			var cmd tea.Cmd
			s.inputs[i], cmd = s.inputs[i].Update(msg)
			return cmd
		}
	}
	return nil
}

// finish reacts to a completed settings call.
func (s *settingsScreen) finish(op string, ok bool) {
	if !ok {
		return
	}
	switch op {
	case "update email":
		s.inputs[inEmail].SetValue("")
	case "update password":
		s.inputs[inPassword].SetValue("")
		s.inputs[inConfirm].SetValue("")
	case "add key":
		s.inputs[inAPIKey].SetValue("")
	case "delete account":
		s.inputs[inDelete].SetValue("")
		s.deleteArmed = false
	}
}

// =============================================================================
// KEYS
// =============================================================================

// keysLoadedMsg carries the stored keys and the selection.
type keysLoadedMsg struct {
	change keys.Change
	err    error
}

func (m *Model) refreshKeys() tea.Cmd {
	if m.deps.Keys == nil {
		return nil
	}
	km, parent := m.deps.Keys, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		change, err := km.State(ctx)
		return keysLoadedMsg{change: change, err: err}
	}
}

func (m *Model) applyKeys(msg keysLoadedMsg) {
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Msg("load api keys")
		return
	}
	m.chat.header.Keys = msg.change.Keys
	m.chat.header.Active = msg.change.Active
	s := m.settings
	s.keys, s.active = msg.change.Keys, msg.change.Active
	s.limitReached = len(s.keys) >= keys.MaxKeys
	if s.limitReached {
		s.inputs[inAPIKey].SetValue("")
	}
	if m.screen == ScreenSettings {
		s.focus(m.chatHistory())
	}
	m.layout()
}

func (m *Model) chatHistory() []model.Chat {
	return m.chat.snap.History
}

func (m *Model) settingsKey(msg tea.KeyMsg) tea.Cmd {
	s := m.settings
	history := m.chatHistory()

	if s.confirm != nil {
		switch msg.String() {
		case "y", "Y", "enter":
			run := s.confirm.run
			s.confirm = nil
			return run()
		case "n", "N", "esc":
			s.confirm = nil
		}
		return nil
	}

	switch msg.String() {
	case "esc":
		if s.deleteArmed {
			s.deleteArmed = false
			s.inputs[inDelete].SetValue("")
			return s.focus(history)
		}
		return m.closeSettings()
	case "ctrl+s":
		return m.closeSettings()
	case "pgdown", "ctrl+right", "shift+right":
		s.tab = (s.tab + 1) % numTabs
		s.cursor = 0
		return s.focus(history)
	case "pgup", "ctrl+left", "shift+left":
		s.tab = (s.tab + numTabs - 1) % numTabs
		s.cursor = 0
		return s.focus(history)
	case "up", "shift+tab":
		if s.cursor > 0 {
			s.cursor--
		}
		return s.focus(history)
	case "down", "tab":
		if s.cursor < len(s.items(history))-1 {
			s.cursor++
		}
		return s.focus(history)
	}

	item, ok := s.current(history)
	if !ok {
		return nil
	}
	if item.kind == itemInput {
		if msg.Type == tea.KeyEnter {
			return m.submitSettingsInput(item.field)
		}
		return s.updateInput(msg)
	}
	return m.settingsAction(item, msg.String(), history)
}

func (m *Model) closeSettings() tea.Cmd {
	for i := range m.settings.inputs {
		m.settings.inputs[i].Blur()
	}
	m.screen = ScreenChat
	cmd := m.chat.focusInput()
	m.layout()
	return cmd
}

func (m *Model) submitSettingsInput(f settingsField) tea.Cmd {
	s := m.settings
	sess := m.deps.Session
	value := strings.TrimSpace(s.inputs[f].Value())

	switch f {
	case inName:
		return m.run("update name", "Display name updated successfully!", func(ctx context.Context) error {
			return sess.UpdateProfile(ctx, value)
		})
	case inEmail:
		if value == "" {
			m.toasts.Error("Please enter a new email address")
			return nil
		}
		return m.run("update email", "Verification email sent! Please check your new email inbox and click the link to confirm.",
			func(ctx context.Context) error { return sess.UpdateEmail(ctx, value) })
	case inPassword:
		s.cursor++
		return s.focus(m.chatHistory())
	case inConfirm:
		pw, confirm := s.inputs[inPassword].Value(), s.inputs[inConfirm].Value()
		if err := authflow.ValidatePasswords(pw, confirm); err != nil {
			m.toasts.Error(err.Error())
			return nil
		}
		return m.run("update password", "Password updated successfully!", func(ctx context.Context) error {
			return sess.UpdatePassword(ctx, pw)
		})
	case inDelete:
		if value != deleteConfirmWord {
			m.toasts.Warning("Type DELETE to confirm")
			return nil
		}
		return m.run("delete account", "Account deleted successfully.", func(ctx context.Context) error {
			if err := sess.DeleteAccount(ctx); err != nil {
				return fmt.Errorf("%s: %w", api.MsgDeleteFailed, err)
			}
			return nil
		})
	case inAPIKey:
		if m.deps.Keys == nil || value == "" {
			return nil
		}
		km := m.deps.Keys
		return m.run("add key", "Google Gemini key added", func(ctx context.Context) error {
			_, err := km.Add(ctx, value)
			return err
		})
	}
	return nil
}

func (m *Model) settingsAction(item settingsItem, key string, history []model.Chat) tea.Cmd {
	s := m.settings
	switch item.kind {
	case itemResetChat:
		if key != "enter" || m.ws == nil || !m.chat.snap.Ready {
			return nil
		}
		s.confirm = &pendingConfirm{
			prompt: "Reset the knowledge base of this chat?",
			run: func() tea.Cmd {
				return m.storeCall("reset", "Knowledge base cleared successfully!", func(ctx context.Context, st *chat.Store) error {
					return st.ResetKnowledgeBase(ctx, chat.ScopeChat)
				})
			},
		}
	case itemLogout:
		if key == "enter" {
			sess := m.deps.Session
			return m.run("sign out", "", sess.SignOut)
		}
	case itemDeleteAccount:
		if key == "enter" {
			s.deleteArmed = true
			s.cursor = len(s.items(history)) - 1
			return s.focus(history)
		}
	case itemKey:
		return m.keyAction(s.keys[item.index], key)
	case itemRefreshStats:
		if key == "enter" && m.deps.Stats != nil {
			m.deps.Stats.Refresh()
			m.toasts.Status("Refreshing usage...")
		}
	case itemEraseAll:
		if key != "enter" || m.ws == nil {
			return nil
		}
		s.confirm = &pendingConfirm{
			prompt: "Erase every document and all chat history?",
			run: func() tea.Cmd {
				return m.storeCall("reset", "Knowledge base cleared successfully!", func(ctx context.Context, st *chat.Store) error {
					return st.ResetKnowledgeBase(ctx, chat.ScopeGlobal)
				})
			},
		}
	case itemChat:
		if m.ws == nil || item.index >= len(history) {
			return nil
		}
		c := history[item.index]
		switch key {
		case "enter":
			cmd := m.storeCall("load chat", "", func(ctx context.Context, st *chat.Store) error {
				return st.LoadChat(ctx, c)
			})
			return tea.Batch(cmd, m.closeSettings())
		case "d", "delete", "backspace":
			return m.storeCall("delete chat", "Chat deleted", func(ctx context.Context, st *chat.Store) error {
				return st.DeleteChat(ctx, c.ID)
			})
		}
	}
	return nil
}

// keyAction handles enter (select), t (test), d (delete), c (copy) and v
// (show) on a stored key.
func (m *Model) keyAction(k model.APIKey, key string) tea.Cmd {
	km := m.deps.Keys
	if km == nil {
		return nil
	}
	switch key {
	case "enter":
		target := k.Key
		if m.settings.active == k.Key {
			target = ""
		}
		return m.run("select key", "", func(ctx context.Context) error { return km.Select(ctx, target) })
	case "t":
		m.toasts.Status("Testing key...")
		return m.run("test key", "Key verified successfully!", func(ctx context.Context) error {
			return km.Test(ctx, k.ID)
		})
	case "d", "delete", "backspace":
		return m.run("delete key", "Key removed", func(ctx context.Context) error {
			return km.Delete(ctx, k.ID)
		})
	case "c":
		if m.deps.Clipboard == nil {
			m.toasts.Error("Clipboard unavailable")
			return nil
		}
		if err := m.deps.Clipboard(k.Key); err != nil {
			m.toasts.Error("Clipboard unavailable: " + err.Error())
			return nil
		}
		m.toasts.Success("Key copied to clipboard")
	case "v":
		m.settings.visible[k.ID] = !m.settings.visible[k.ID]
	}
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

func (m *Model) settingsView() string {
	s := m.settings
	t := m.theme
	history := m.chatHistory()
	width := max(m.width-4, 20)

	tabs := make([]string, numTabs)
	for i := range tabs {
		style := t.Tab
		if settingsTab(i) == s.tab {
			style = t.TabActive
		}
		tabs[i] = style.Render(tabNames[i])
	}

	var b strings.Builder
	b.WriteString(t.Title.Render("Settings"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	items := s.items(history)
	row := func(i int, text string) string {
		if i == s.cursor {
			return t.ItemSelected.Render("> " + text)
		}
		return t.Item.Render("  " + text)
	}
	input := func(i int, f settingsField) string {
		style := t.Input
		if i == s.cursor {
			style = t.InputFocused
		}
		return style.Render(s.inputs[f].View())
	}
	pos := func(kind itemKind, field settingsField, index int) int {
		for i, it := range items {
			if it.kind == kind && (kind != itemInput || it.field == field) && it.index == index {
				return i
			}
		}
		return -1
	}

	switch s.tab {
	case tabGeneral:
		s.viewGeneral(&b, input, row, pos)
	case tabSecurity:
		s.viewSecurity(&b, input, row, pos)
	case tabAPIKeys:
		s.viewKeys(&b, input, row, pos)
	case tabBilling:
		s.viewBilling(&b, row, pos, m.deps.Stats != nil)
	case tabData:
		s.viewData(&b, row, pos, history)
	case tabAbout:
		s.viewAbout(&b, m.deps.Version)
	}

	if s.confirm != nil {
		b.WriteString("\n")
		b.WriteString(styles.RenderWarning(s.confirm.prompt))
		b.WriteString(t.ShortcutDesc.Render("  (y/n)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	key := func(k, d string) string { return t.ShortcutKey.Render(k) + t.ShortcutDesc.Render(" "+d) }
	b.WriteString(strings.Join([]string{
		key("pgup/pgdn", "tabs"),
		key("up/down", "move"),
		key("enter", "select"),
		key("esc", "back"),
	}, "  "))

	body := t.App.Width(width).Render(b.String())
	return lipgloss.NewStyle().MaxHeight(max(m.height-m.toastHeight(), 1)).Render(body)
}

type (
	inputRenderer func(i int, f settingsField) string
	rowRenderer   func(i int, text string) string
	positioner    func(kind itemKind, field settingsField, index int) int
)

func (s *settingsScreen) section(b *strings.Builder, title string) {
	b.WriteString(s.theme.SectionTitle.Render(title))
	b.WriteString("\n")
}

func (s *settingsScreen) viewGeneral(b *strings.Builder, input inputRenderer, row rowRenderer, pos positioner) {
	t := s.theme
	s.section(b, "Profile")
	b.WriteString(t.Item.Render(s.user.DisplayName()))
	b.WriteString("\n")
	b.WriteString(t.Muted.Render(s.user.Email))
	b.WriteString("\n\n")

	s.section(b, "Display Name")
	b.WriteString(input(pos(itemInput, inName, 0), inName))
	b.WriteString("\n\n")

	s.section(b, "Change Email")
	b.WriteString(t.Muted.Render("Current: " + s.user.Email))
	b.WriteString("\n")
	if s.user.NewEmail != "" {
		b.WriteString(t.WarningStyle.Render("Pending: " + s.user.NewEmail))
		b.WriteString("\n")
	}
	b.WriteString(input(pos(itemInput, inEmail, 0), inEmail))
	b.WriteString("\n\n")

	s.section(b, "Knowledge Base")
	label := "No Documents"
	if s.hasDocuments {
		label = "Reset"
	}
	b.WriteString(row(pos(itemResetChat, 0, 0), label))
	b.WriteString("\n")
}

func (s *settingsScreen) viewSecurity(b *strings.Builder, input inputRenderer, row rowRenderer, pos positioner) {
	t := s.theme
	s.section(b, "Change Password")
	b.WriteString(input(pos(itemInput, inPassword, 0), inPassword))
	b.WriteString("\n")
	b.WriteString(input(pos(itemInput, inConfirm, 0), inConfirm))
	b.WriteString("\n")
	b.WriteString(t.Muted.Render(fmt.Sprintf("At least %d characters.", authflow.MinPasswordLength)))
	b.WriteString("\n\n")

	s.section(b, "Session")
	b.WriteString(row(pos(itemLogout, 0, 0), "Log out"))
	b.WriteString("\n\n")

	b.WriteString(t.ErrorStyle.Render("Danger Zone"))
	b.WriteString("\n")
	b.WriteString(row(pos(itemDeleteAccount, 0, 0), t.DangerButton.Render("Delete Account")))
	b.WriteString("\n")
	if s.deleteArmed {
		b.WriteString(t.Muted.Render("This cannot be undone. Type DELETE to confirm:"))
		b.WriteString("\n")
		b.WriteString(input(pos(itemInput, inDelete, 0), inDelete))
		b.WriteString("\n")
	}
}

func (s *settingsScreen) viewKeys(b *strings.Builder, input inputRenderer, row rowRenderer, pos positioner) {
	t := s.theme
	s.section(b, "Bring Your Own Key (BYOK)")
	b.WriteString(t.Muted.Render(fmt.Sprintf("Manage up to %d Google Gemini API keys. Use ctrl+k in the chat to switch between them.", keys.MaxKeys)))
	b.WriteString("\n\n")

	if s.limitReached {
		b.WriteString(t.WarningStyle.Render(keys.ErrLimitReached.Error()))
	} else {
		b.WriteString(t.Label.Render("Add Google API Key"))
		b.WriteString("\n")
		b.WriteString(input(pos(itemInput, inAPIKey, 0), inAPIKey))
	}
	b.WriteString("\n\n")

	for i, k := range s.keys {
		shown := k.Masked()
		if s.visible[k.ID] {
			shown = k.Key
		}
		line := fmt.Sprintf("Gemini Key %d  %s", i+1, shown)
		if k.Key == s.active {
			line += "  " + t.ReadyBadge.Render("in use")
		}
		b.WriteString(row(pos(itemKey, 0, i), line))
		b.WriteString("\n")
	}
	if len(s.keys) > 0 {
		b.WriteString(t.Muted.Render("enter use  t test  c copy  v show  d delete"))
		b.WriteString("\n")
	}
}

func (s *settingsScreen) viewBilling(b *strings.Builder, row rowRenderer, pos positioner, tracked bool) {
	t := s.theme
	s.section(b, "Your Plan")
	b.WriteString(t.Card.Render(strings.Join([]string{
		t.Title.Render("Free Plan") + "  " + t.ReadyBadge.Render("Current"),
		"+ Upload up to 20 files at a time",
		"+ Chat with documents",
		"+ Use your own API keys",
	}, "\n")))
	b.WriteString("\n")

	s.section(b, "Usage")
	b.WriteString(t.Item.Render("Files processed: " + util.FormatCount(s.stats.FilesProcessed)))
	b.WriteString("\n")
	b.WriteString(t.Item.Render("Tokens used:     " + util.FormatCount(s.stats.TokensUsed)))
	b.WriteString("\n")
	if tracked {
		b.WriteString(row(pos(itemRefreshStats, 0, 0), "Refresh"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	s.section(b, "Upgrade to Pro")
	b.WriteString(t.Muted.Render("Pro Plan  Coming Soon"))
	b.WriteString("\n")
}

func (s *settingsScreen) viewData(b *strings.Builder, row rowRenderer, pos positioner, history []model.Chat) {
	t := s.theme
	b.WriteString(t.ErrorStyle.Render("Knowledge Base"))
	b.WriteString("\n")
	b.WriteString(row(pos(itemEraseAll, 0, 0), t.DangerButton.Render("Erase All")))
	b.WriteString("\n\n")

	s.section(b, "Chat History")
	if len(history) == 0 {
		b.WriteString(t.Muted.Render("No chat history"))
		b.WriteString("\n")
		return
	}
	for i, c := range history {
		line := util.PadRight(util.TruncateWidth(c.Title, 40), 40) + "  " + t.FileMeta.Render(c.Time)
		b.WriteString(row(pos(itemChat, 0, i), line))
		b.WriteString("\n")
	}
	b.WriteString(t.Muted.Render("enter open  d delete"))
	b.WriteString("\n")
}

func (s *settingsScreen) viewAbout(b *strings.Builder, version string) {
	t := s.theme
	b.WriteString(t.Title.Render("Arkiv"))
	b.WriteString("\n")
	b.WriteString(t.Subtitle.Render("AI-powered RAG for documents"))
	b.WriteString("\n")
	b.WriteString(t.Muted.Render("Version " + util.FirstNonEmpty(version, "dev")))
	b.WriteString("\n\n")
	s.section(b, "Contact & Support")
	b.WriteString(styles.RenderLink("https://github.com/saptarshiroy39/Arkiv"))
	b.WriteString("\n")
	b.WriteString(styles.RenderLink("https://github.com/saptarshiroy39/Arkiv/issues"))
	b.WriteString("\n")
}
