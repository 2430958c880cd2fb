// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// =============================================================================
// AUTH SCREEN
// =============================================================================

type authField int

const (
	fieldName authField = iota
	fieldEmail
	fieldPassword
	fieldConfirm
	fieldCode
	fieldRedirect
	numAuthFields
)

// oauthProvider is the identity provider offered on the passwordless screen.
const oauthProvider = "google"

type authScreen struct {
	theme   *styles.Theme
	machine *authflow.Machine
	inputs  [numAuthFields]textinput.Model
	focused int

	// Set while the browser half of an OAuth sign-in is pending.
	oauthURL string
}

// authDoneMsg reports a finished submit or resend started in mode from.
type authDoneMsg struct {
	from authflow.Mode
	err  error
}

func newAuthScreen(theme *styles.Theme, machine *authflow.Machine) *authScreen {
	a := &authScreen{theme: theme, machine: machine}
	placeholders := [numAuthFields]string{
		fieldName:     "Display name (optional)",
		fieldEmail:    "you@example.com",
		fieldPassword: "Password",
		fieldConfirm:  "Confirm password",
		fieldCode:     "6-digit code",
		fieldRedirect: "Paste the URL your browser ended on",
	}
	for i := range a.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		ti.Width = 40
		a.inputs[i] = ti
	}
	a.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	a.inputs[fieldConfirm].EchoMode = textinput.EchoPassword
	a.inputs[fieldCode].CharLimit = authflow.CodeLength
	a.inputs[fieldRedirect].CharLimit = 4096
	return a
}

// fields returns the inputs shown for the current form, in tab order.
func (a *authScreen) fields() []authField {
	if a.oauthURL != "" {
		return []authField{fieldRedirect}
	}
	switch a.machine.Mode() {
	case authflow.ModeLogin:
		return []authField{fieldEmail, fieldPassword}
	case authflow.ModeSignup:
		return []authField{fieldName, fieldEmail, fieldPassword, fieldConfirm}
	case authflow.ModeForgot, authflow.ModeEmail:
		return []authField{fieldEmail}
	case authflow.ModeVerify, authflow.ModeCode:
		return []authField{fieldCode}
	case authflow.ModeReset:
		return []authField{fieldCode, fieldPassword, fieldConfirm}
	}
	return nil
}

// focus focuses the current field, keeping the position when possible.
func (a *authScreen) focus() tea.Cmd {
	fields := a.fields()
	for i := range a.inputs {
		a.inputs[i].Blur()
	}
	if len(fields) == 0 {
		return nil
	}
	if a.focused >= len(fields) {
		a.focused = 0
	}
	return a.inputs[fields[a.focused]].Focus()
}

func (a *authScreen) move(delta int) tea.Cmd {
	n := len(a.fields())
	if n == 0 {
		return nil
	}
	a.focused = (a.focused + delta + n) % n
	return a.focus()
}

// clearSecrets empties passwords and codes after a form change.
func (a *authScreen) clearSecrets() {
	for _, f := range []authField{fieldPassword, fieldConfirm, fieldCode, fieldRedirect} {
		a.inputs[f].SetValue("")
	}
	a.focused = 0
}

func (a *authScreen) form() authflow.Form {
	v := func(f authField) string { return a.inputs[f].Value() }
	return authflow.Form{
		Email:    v(fieldEmail),
		Password: v(fieldPassword),
		Confirm:  v(fieldConfirm),
		Name:     v(fieldName),
		Code:     v(fieldCode),
	}
}

func (a *authScreen) update(msg tea.Msg) tea.Cmd {
	fields := a.fields()
	if len(fields) == 0 {
		return nil
	}
	f := fields[a.focused]
	var cmd tea.Cmd
	a.inputs[f], cmd = a.inputs[f].Update(msg)
	if f == fieldCode {
		if clean := authflow.SanitizeCode(a.inputs[f].Value()); clean != a.inputs[f].Value() {
			a.inputs[f].SetValue(clean)
		}
	}
	return cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) authKey(msg tea.KeyMsg) tea.Cmd {
	a := m.auth
	st := a.machine.State()
	if st.Busy {
		return nil
	}

	switch msg.String() {
	case "tab", "down":
		return a.move(1)
	case "shift+tab", "up":
		return a.move(-1)
	case "esc":
		if a.oauthURL != "" {
			a.oauthURL = ""
			return a.focus()
		}
		if st.Variant == authflow.VariantPasswordless {
			return m.switchAuth(authflow.ModeEmail)
		}
		return m.switchAuth(authflow.ModeLogin)
	case "ctrl+n":
		return m.switchAuth(authflow.ModeSignup)
	case "ctrl+l":
		return m.switchAuth(authflow.ModeLogin)
	case "ctrl+f":
		return m.switchAuth(authflow.ModeForgot)
	case "ctrl+r":
		ctx, from := m.ctx, st.Mode
		return func() tea.Msg { return authDoneMsg{from: from, err: a.machine.Resend(ctx)} }
	case "ctrl+o":
		return m.startOAuth()
	case "enter":
		return m.submitAuth()
	}
	return a.update(msg)
}

func (m *Model) switchAuth(mode authflow.Mode) tea.Cmd {
	if err := m.auth.machine.SwitchTo(mode); err != nil {
		return nil
	}
	m.auth.oauthURL = ""
	m.auth.clearSecrets()
	return m.auth.focus()
}

func (m *Model) submitAuth() tea.Cmd {
	a := m.auth
	if a.oauthURL != "" {
		redirect := strings.TrimSpace(a.inputs[fieldRedirect].Value())
		s := m.deps.Session
		return m.run("oauth", "", func(ctx context.Context) error {
			return s.CompleteOAuth(ctx, redirect)
		})
	}
	if a.machine.Mode() == authflow.ModeResetDone {
		a.machine.Acknowledge()
		a.clearSecrets()
		return a.focus()
	}
	// Enter on an earlier field moves on; the last field submits.
	if fields := a.fields(); a.focused < len(fields)-1 {
		return a.move(1)
	}
	form := a.form()
	ctx, from := m.ctx, a.machine.Mode()
	return func() tea.Msg { return authDoneMsg{from: from, err: a.machine.Submit(ctx, form)} }
}

func (m *Model) startOAuth() tea.Cmd {
	u, err := m.auth.machine.OAuthURL(oauthProvider)
	if err != nil {
		return nil
	}
	m.auth.oauthURL = u
	m.auth.focused = 0
	if m.deps.Clipboard != nil && m.deps.Clipboard(u) == nil {
		m.toasts.Status("Sign-in link copied to clipboard")
	}
	return m.auth.focus()
}

// =============================================================================
// VIEW
// =============================================================================

func (a *authScreen) view(width, height int, spin string) string {
	t := a.theme
	st := a.machine.State()

	var b strings.Builder
	b.WriteString(t.Title.Render("Arkiv"))
	b.WriteString("  ")
	b.WriteString(t.Subtitle.Render("AI-powered RAG for documents"))
	b.WriteString("\n\n")

	title := st.Mode.Title()
	if a.oauthURL != "" {
		title = "Continue in your browser"
	}
	b.WriteString(t.Title.Render(title))
	b.WriteString("\n")

	if hint := a.hint(st); hint != "" {
		b.WriteString(t.Muted.Render(hint))
		b.WriteString("\n")
	}
	if a.oauthURL != "" {
		b.WriteString(t.LinkStyle.Render(a.oauthURL))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, f := range a.fields() {
		style := t.Input
		if i == a.focused {
			style = t.InputFocused
		}
		b.WriteString(style.Render(a.inputs[f].View()))
		b.WriteString("\n")
	}

	switch {
	case st.Busy:
		b.WriteString(spin + " " + t.ThinkingText.Render("Please wait..."))
	case st.Error != "":
		b.WriteString(styles.RenderError(st.Error))
	case st.Message != "":
		b.WriteString(styles.RenderSuccess(st.Message))
	}
	b.WriteString("\n\n")
	b.WriteString(a.shortcuts(st))

	card := t.Card.Width(min(64, max(width-4, 30))).Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, card)
}

func (a *authScreen) hint(st authflow.State) string {
	if a.oauthURL != "" {
		return "Open this link, sign in, then paste the final URL below."
	}
	switch st.Mode {
	case authflow.ModeVerify:
		return "We sent a 6-digit code to " + st.PendingEmail
	case authflow.ModeReset:
		return "Enter the code sent to " + st.ResetEmail + " and choose a new password."
	case authflow.ModeCode:
		return "Code sent to " + st.PendingEmail
	case authflow.ModeForgot:
		return "We'll email you a code to reset your password."
	}
	return ""
}

func (a *authScreen) shortcuts(st authflow.State) string {
	t := a.theme
	key := func(k, d string) string { return t.ShortcutKey.Render(k) + t.ShortcutDesc.Render(" "+d) }

	var parts []string
	if st.Mode == authflow.ModeResetDone {
		parts = append(parts, key("enter", "Log In Now"))
		return strings.Join(parts, "  ")
	}
	parts = append(parts, key("enter", "submit"), key("tab", "next field"))
	switch st.Mode {
	case authflow.ModeLogin:
		parts = append(parts, key("ctrl+n", "sign up"), key("ctrl+f", "forgot password"))
	case authflow.ModeSignup, authflow.ModeForgot:
		parts = append(parts, key("ctrl+l", "log in"))
	case authflow.ModeVerify, authflow.ModeReset, authflow.ModeCode:
		parts = append(parts, key("ctrl+r", "resend code"), key("esc", "back"))
	case authflow.ModeEmail:
		parts = append(parts, key("ctrl+o", "continue with Google"))
	}
	return strings.Join(parts, "  ")
}
