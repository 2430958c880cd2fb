// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// DefaultKeyLabel names the server's own model key in the selector.
const DefaultKeyLabel = "Default"

// Header is the top bar: token usage, snow toggle and the BYOK selector.
type Header struct {
	Tokens int
	Keys   []model.APIKey
	Active string // selected key, "" for default
	Snow   bool
	Width  int
	theme  *styles.Theme
}

// NewHeader creates a header.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{theme: theme, Width: 80}
}

// ActiveIndex returns 0 for the default key or the 1-based position of the
// selected key. An unknown selection reads as default.
func (h *Header) ActiveIndex() int {
	if h.Active == "" {
		return 0
	}
	for i, k := range h.Keys {
		if k.Key == h.Active {
			return i + 1
		}
	}
	return 0
}

// KeyAt returns the key value for selector position i (0 = default).
func (h *Header) KeyAt(i int) (string, bool) {
	if i == 0 {
		return "", true
	}
	if i < 1 || i > len(h.Keys) {
		return "", false
	}
	return h.Keys[i-1].Key, true
}

// NextKey returns the key after the selected one, wrapping to default.
func (h *Header) NextKey() string {
	next := (h.ActiveIndex() + 1) % (len(h.Keys) + 1)
	key, _ := h.KeyAt(next)
	return key
}

// View renders the header.
func (h *Header) View() string {
	t := h.theme
	left := t.HeaderMeta.Render("Token Usage: ") + t.Tokens.Render(util.FormatCount(h.Tokens))

	snow := "snow off"
	if h.Snow {
		snow = "* snow *"
	}
	center := t.HeaderMeta.Render(snow)

	right := ""
	if len(h.Keys) > 0 {
		right = h.selector()
	}

	inner := h.Width - t.Header.GetHorizontalFrameSize()
	lw, cw, rw := lipgloss.Width(left), lipgloss.Width(center), lipgloss.Width(right)
	gap := inner - lw - cw - rw
	if gap < 2 {
		// Too narrow for the middle.
		center, cw = "", 0
		gap = inner - lw - rw
	}
	if gap < 1 {
		return t.Header.Width(h.Width).Render(util.TruncateWidth(left, inner))
	}
	leftGap := gap / 2
	line := left + strings.Repeat(" ", leftGap) + center + strings.Repeat(" ", gap-leftGap) + right
	return t.Header.Width(h.Width).Render(line)
}

func (h *Header) selector() string {
	t := h.theme
	active := h.ActiveIndex()
	chips := make([]string, 0, len(h.Keys)+1)
	for i := 0; i <= len(h.Keys); i++ {
		label := DefaultKeyLabel
		if i > 0 {
			label = "Key " + util.FormatCount(i)
		}
		style := t.KeyChip
		if i == active {
			style = t.KeyChipFocus
		}
		chips = append(chips, style.Render(label))
	}
	return strings.Join(chips, "")
}
