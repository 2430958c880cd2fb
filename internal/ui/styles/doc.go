// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles of the Arkiv terminal UI.

# Color System (colors.go)

Every color is a lipgloss.AdaptiveColor, so the same palette works on light
and dark terminals:

	Indigo  - Brand accent, focus, the active tab
	Sky     - User turns, links
	Emerald - Success, readiness
	Amber   - Warnings, the token counter
	Rose    - Errors, destructive actions

Surface and text tokens (Surface, SurfaceDim, Overlay, TextPrimary,
TextSecondary, TextMuted) layer the screen.

# Theme System (theme.go)

NewTheme builds every style once for a theme mode ("auto", "dark" or
"light"). Components receive the *Theme instead of building styles inline:

	theme := styles.NewTheme("auto")
	title := theme.Title.Render("Arkiv")

# Status Rendering

RenderSuccess, RenderError, RenderWarning and RenderInfo prefix a message
with an ASCII indicator so state is readable without color.
*/
package styles
