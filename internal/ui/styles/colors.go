// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Indigo - Brand accent, focus ring, active tab
var Indigo = lipgloss.AdaptiveColor{Light: "#4F46E5", Dark: "#818CF8"}

// IndigoDeep - Darker indigo for selected rows
var IndigoDeep = lipgloss.AdaptiveColor{Light: "#E0E7FF", Dark: "#312E81"}

// Sky - User messages, links
var Sky = lipgloss.AdaptiveColor{Light: "#0284C7", Dark: "#38BDF8"}

// Emerald - Success, knowledge base ready
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Amber - Warnings, token counter
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Rose - Errors, destructive actions
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// RoseDeep - Background of error turns
var RoseDeep = lipgloss.AdaptiveColor{Light: "#FFE4E6", Dark: "#4C0519"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#0F172A"}
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F1F5F9", Dark: "#020617"}
var SurfaceBright = lipgloss.AdaptiveColor{Light: "#F8FAFC", Dark: "#1E293B"}
var Overlay = lipgloss.AdaptiveColor{Light: "#E2E8F0", Dark: "#334155"}

// =============================================================================
// TEXT COLORS
// =============================================================================

var TextPrimary = lipgloss.AdaptiveColor{Light: "#0F172A", Dark: "#E2E8F0"}
var TextSecondary = lipgloss.AdaptiveColor{Light: "#475569", Dark: "#94A3B8"}
var TextMuted = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#64748B"}
var TextInverse = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#0F172A"}

// Snow is the color of the decorative snowfall.
var Snow = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#F8FAFC"}

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// StatusIndicatorSet holds ASCII markers shown next to colored status text.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
	Active  string
}

// StatusIndicators are readable without color.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[ ]",
	Active:  "[*]",
}

func renderStatus(color lipgloss.AdaptiveColor, marker, message string) string {
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(marker + " " + message)
}

// RenderSuccess renders message with the success marker.
func RenderSuccess(message string) string {
	return renderStatus(Emerald, StatusIndicators.Success, message)
}

// RenderError renders message with the error marker.
func RenderError(message string) string {
	return renderStatus(Rose, StatusIndicators.Error, message)
}

// RenderWarning renders message with the warning marker.
func RenderWarning(message string) string {
	return renderStatus(Amber, StatusIndicators.Warning, message)
}

// RenderInfo renders message with the info marker.
func RenderInfo(message string) string {
	return renderStatus(Sky, StatusIndicators.Info, message)
}

// RenderLink renders text as an underlined link.
func RenderLink(text string) string {
	return lipgloss.NewStyle().Foreground(Sky).Underline(true).Render(text)
}
