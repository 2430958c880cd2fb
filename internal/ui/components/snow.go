// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"math/rand/v2"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// =============================================================================
// SNOW
// =============================================================================

// SnowTickMsg advances the snowfall.
type SnowTickMsg struct{}

// SnowTickCmd schedules the next frame.
func SnowTickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg { return SnowTickMsg{} })
}

const maxFlakes = 60

// flake glyphs by depth, far to near.
var flakeGlyphs = []rune{'.', '\'', '+', '*'}

type flake struct {
	x, y  float64
	speed float64
	drift float64
	depth int
}

// Snow is a decorative snowfall band. Far flakes are small and slow, near
// flakes large and fast.
type Snow struct {
	Width  int
	Height int

	flakes []flake
	rng    *rand.Rand
	theme  *styles.Theme
}

// NewSnow creates an empty band. seed makes the animation reproducible.
func NewSnow(theme *styles.Theme, seed uint64) *Snow {
	return &Snow{theme: theme, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), Height: 3}
}

func (s *Snow) spawn(y float64) flake {
	depth := s.rng.Float64()
	return flake{
		x:     s.rng.Float64() * float64(max(s.Width, 1)),
		y:     y,
		speed: 0.15 + depth*0.5,
		drift: (s.rng.Float64() - 0.5) * 0.3,
		depth: int(depth * float64(len(flakeGlyphs))),
	}
}

// Step advances one frame and adds flakes until the band is dense enough.
func (s *Snow) Step() {
	if s.Width <= 0 || s.Height <= 0 {
		return
	}
	live := s.flakes[:0]
	for _, f := range s.flakes {
		f.y += f.speed
		f.x += f.drift
		if f.y < float64(s.Height) && f.x >= 0 && f.x < float64(s.Width) {
			live = append(live, f)
		}
	}
	s.flakes = live
	target := min(maxFlakes, s.Width*s.Height/8)
	for len(s.flakes) < target {
		s.flakes = append(s.flakes, s.spawn(0))
	}
}

// Reset removes every flake.
func (s *Snow) Reset() { s.flakes = nil }

// Len returns the number of live flakes.
func (s *Snow) Len() int { return len(s.flakes) }

// View renders the band.
func (s *Snow) View() string {
	if s.Width <= 0 || s.Height <= 0 {
		return ""
	}
	grid := make([][]rune, s.Height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", s.Width))
	}
	for _, f := range s.flakes {
		x, y := int(f.x), int(f.y)
		if y >= 0 && y < s.Height && x >= 0 && x < s.Width {
			grid[y][x] = flakeGlyphs[min(f.depth, len(flakeGlyphs)-1)]
		}
	}
	lines := make([]string, s.Height)
	for i, row := range grid {
		lines[i] = s.theme.SnowStyle.Render(string(row))
	}
	return strings.Join(lines, "\n")
}
