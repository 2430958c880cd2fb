// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// FRAME
	// ==========================================================================

	App      lipgloss.Style
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Card     lipgloss.Style

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header       lipgloss.Style
	HeaderBrand  lipgloss.Style
	HeaderMeta   lipgloss.Style
	Tokens       lipgloss.Style
	KeyChip      lipgloss.Style
	KeyChipFocus lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar        lipgloss.Style
	SidebarFocused lipgloss.Style
	SectionTitle   lipgloss.Style
	Item           lipgloss.Style
	ItemSelected   lipgloss.Style
	ItemActive     lipgloss.Style
	FileName       lipgloss.Style
	FileMeta       lipgloss.Style
	ReadyBadge     lipgloss.Style
	NotReadyBadge  lipgloss.Style

	// ==========================================================================
	// CONVERSATION
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserTurn       lipgloss.Style
	AssistantTurn  lipgloss.Style
	ErrorTurn      lipgloss.Style
	Spinner        lipgloss.Style
	ThinkingText   lipgloss.Style

	// ==========================================================================
	// INPUT AND FORMS
	// ==========================================================================

	Input         lipgloss.Style
	InputFocused  lipgloss.Style
	InputDisabled lipgloss.Style
	Label         lipgloss.Style
	Button        lipgloss.Style
	ButtonActive  lipgloss.Style
	DangerButton  lipgloss.Style
	Tab           lipgloss.Style
	TabActive     lipgloss.Style

	// ==========================================================================
	// STATUS AND SHORTCUTS
	// ==========================================================================

	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
	LinkStyle    lipgloss.Style
	SnowStyle    lipgloss.Style
}

// NewTheme creates a theme for mode: "dark" or "light" force the palette,
// anything else follows the terminal background.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	// Frame
	t.App = lipgloss.NewStyle()
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(Indigo)
	t.Subtitle = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Card = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 2)

	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().Bold(true).Foreground(Indigo)
	t.HeaderMeta = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Tokens = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.KeyChip = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)
	t.KeyChipFocus = t.KeyChip.
		Foreground(TextInverse).
		Background(Indigo).
		Bold(true)

	// Sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarFocused = t.Sidebar.BorderForeground(Indigo)
	t.SectionTitle = lipgloss.NewStyle().
		Foreground(TextMuted).
		Bold(true).
		MarginTop(1)
	t.Item = lipgloss.NewStyle().Foreground(TextPrimary)
	t.ItemSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(IndigoDeep).
		Bold(true)
	t.ItemActive = lipgloss.NewStyle().Foreground(Indigo)
	t.FileName = lipgloss.NewStyle().Foreground(TextPrimary)
	t.FileMeta = lipgloss.NewStyle().Foreground(TextMuted)
	t.ReadyBadge = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.NotReadyBadge = lipgloss.NewStyle().Foreground(Amber)

	// Conversation
	t.UserLabel = lipgloss.NewStyle().Foreground(Sky).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(Indigo).Bold(true)
	t.UserTurn = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(Sky).
		PaddingLeft(1)
	t.AssistantTurn = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(1)
	t.ErrorTurn = lipgloss.NewStyle().
		Foreground(Rose).
		Background(RoseDeep).
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(Rose).
		PaddingLeft(1)
	t.Spinner = lipgloss.NewStyle().Foreground(Indigo)
	t.ThinkingText = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)

	// Input and forms
	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputFocused = t.Input.BorderForeground(Indigo)
	t.InputDisabled = t.Input.Foreground(TextMuted)
	t.Label = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Button = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceBright).
		Padding(0, 2)
	t.ButtonActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Indigo).
		Bold(true).
		Padding(0, 2)
	t.DangerButton = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Rose).
		Bold(true).
		Padding(0, 2)
	t.Tab = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 2)
	t.TabActive = lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true).
		Underline(true).
		Padding(0, 2)

	// Status
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Indigo).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)
	t.SuccessStyle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.InfoStyle = lipgloss.NewStyle().Foreground(Sky)
	t.LinkStyle = lipgloss.NewStyle().Foreground(Sky).Underline(true)
	t.SnowStyle = lipgloss.NewStyle().Foreground(Snow)
}

// GlamourStyle names the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, sidebar hidden
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
