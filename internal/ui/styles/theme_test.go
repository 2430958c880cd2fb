// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewThemeForcedModes(t *testing.T) {
	dark := NewTheme("dark")
	if !dark.IsDark || dark.GlamourStyle() != "dark" {
		t.Errorf("dark theme: IsDark=%v glamour=%q", dark.IsDark, dark.GlamourStyle())
	}
	light := NewTheme("LIGHT")
	if light.IsDark || light.GlamourStyle() != "light" {
		t.Errorf("light theme: IsDark=%v glamour=%q", light.IsDark, light.GlamourStyle())
	}
}

func TestLayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
	}
	th := NewTheme("dark")
	for _, tt := range tests {
		th.SetSize(tt.width, 30)
		if got := th.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: got %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestRenderStatusKeepsMarker(t *testing.T) {
	tests := map[string]string{
		RenderSuccess("saved"):   StatusIndicators.Success,
		RenderError("failed"):    StatusIndicators.Error,
		RenderWarning("careful"): StatusIndicators.Warning,
		RenderInfo("note"):       StatusIndicators.Info,
	}
	for out, marker := range tests {
		if !strings.Contains(out, marker) {
			t.Errorf("%q does not contain %q", out, marker)
		}
	}
}
