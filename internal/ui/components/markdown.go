// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Markdown renders assistant answers. With markdown enabled it uses glamour;
// otherwise, or when glamour fails, text is wrapped as-is and fenced code
// blocks are highlighted with chroma.
type Markdown struct {
	style   string
	enabled bool

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer. style is a glamour standard style name
// ("dark", "light"); empty selects the terminal's background automatically.
func NewMarkdown(style string, enabled bool) *Markdown {
	return &Markdown{style: style, enabled: enabled}
}

// Enabled reports whether glamour rendering is on.
func (m *Markdown) Enabled() bool { return m.enabled }

// Render renders content wrapped to width cells.
func (m *Markdown) Render(content string, width int) string {
	if width < 20 {
		width = 20
	}
	if m.enabled {
		if r := m.rendererFor(width); r != nil {
			if out, err := r.Render(content); err == nil {
				return strings.Trim(out, "\n")
			}
		}
	}
	return PlainRender(content, width)
}

func (m *Markdown) rendererFor(width int) *glamour.TermRenderer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer != nil && m.width == width {
		return m.renderer
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if m.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(m.style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	m.renderer, m.width = r, width
	return r
}

// PlainRender wraps prose to width and highlights fenced code blocks.
func PlainRender(content string, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	lines := strings.Split(content, "\n")

	var out []string
	var prose, code []string
	var lang string
	inCode := false

	flushProse := func() {
		if len(prose) > 0 {
			out = append(out, wrap.Render(strings.Join(prose, "\n")))
			prose = nil
		}
	}
	flushCode := func() {
		out = append(out, RenderCodeBlock(lang, strings.Join(code, "\n"), width))
		code, lang = nil, ""
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```") && !inCode:
			flushProse()
			lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			inCode = true
		case strings.HasPrefix(trimmed, "```") && inCode:
			flushCode()
			inCode = false
		case inCode:
			code = append(code, line)
		default:
			prose = append(prose, line)
		}
	}
	if inCode {
		flushCode()
	}
	flushProse()
	return strings.Join(out, "\n")
}

// =============================================================================
// CODE BLOCKS
// =============================================================================

// RenderCodeBlock renders code in a bordered box with a language badge.
func RenderCodeBlock(language, code string, width int) string {
	body := highlightCode(strings.TrimRight(code, "\n"), language)
	if language != "" {
		badge := lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Bold(true).
			Render(language)
		body = badge + "\n" + body
	}
	maxWidth := width - 2
	if maxWidth < 20 {
		maxWidth = 20
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(body)
}

// highlightCode colors code with chroma, returning it unchanged on failure.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
