// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
		want string
	}{
		{"no messages", nil, DefaultTitle},
		{"assistant only", []Message{NewAssistantMessage("hi")}, DefaultTitle},
		{"short question", []Message{NewUserMessage("What is in doc X?")}, "What is in doc X?..."},
		{
			"long question truncated",
			[]Message{NewUserMessage(strings.Repeat("a", 50))},
			strings.Repeat("a", 30) + "...",
		},
		{
			"emoji count as two units",
			[]Message{NewUserMessage(strings.Repeat("😀", 20))},
			strings.Repeat("😀", 15) + "...",
		},
		{
			"pair straddling the limit is dropped",
			[]Message{NewUserMessage(strings.Repeat("a", 29) + "😀tail")},
			strings.Repeat("a", 29) + "...",
		},
		{
			"first user message wins",
			[]Message{NewAssistantMessage("hello"), NewUserMessage("first"), NewUserMessage("second")},
			"first...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.msgs); got != tt.want {
				t.Errorf("DeriveTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"What is in doc X?", 5},
		{"😀😀", 1},
		{"😀😀😀", 2},
		{"日本語", 1},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewChatIDMonotonic(t *testing.T) {
	now := time.Now()
	a := NewChatIDAt(now)
	b := NewChatIDAt(now)
	c := NewChatIDAt(now.Add(-time.Hour))
	if !(a < b && b < c) {
		t.Errorf("ids not strictly increasing: %d %d %d", a, b, c)
	}
}

func TestChatIDRoundTrip(t *testing.T) {
	id := ChatID(1700000000123)
	parsed, err := ParseChatID(id.String())
	if err != nil {
		t.Fatalf("ParseChatID: %v", err)
	}
	if parsed != id {
		t.Errorf("got %d, want %d", parsed, id)
	}
	if _, err := ParseChatID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestChatClone(t *testing.T) {
	c := Chat{ID: 1, Messages: []Message{NewUserMessage("q")}, Files: []string{"a.pdf"}}
	cp := c.Clone()
	cp.Messages[0].Content = "changed"
	cp.Files[0] = "b.pdf"
	if c.Messages[0].Content != "q" || c.Files[0] != "a.pdf" {
		t.Error("Clone shares backing arrays with the original")
	}
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Email: "ada@example.com", Metadata: map[string]any{"display_name": "Ada"}}, "Ada"},
		{User{Email: "ada@example.com", Metadata: map[string]any{"full_name": "Ada L"}}, "Ada L"},
		{User{Email: "ada@example.com"}, "ada"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
	if got := (User{Email: "zed@x.io"}).Initial(); got != "Z" {
		t.Errorf("Initial() = %q", got)
	}
}

func TestAPIKeyMasking(t *testing.T) {
	k := APIKey{Key: "AIzaSyExample1234"}
	if got := k.Masked(); !strings.HasSuffix(got, "1234") || strings.Contains(got, "AIza") {
		t.Errorf("Masked() = %q", got)
	}
	if k.Fingerprint() == "" || len(k.Fingerprint()) != 8 {
		t.Errorf("Fingerprint() = %q", k.Fingerprint())
	}
	if KeyFingerprint("") != "" {
		t.Error("empty key should have empty fingerprint")
	}
}

func TestRoleDisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Error("RoleUser display name")
	}
	if RoleAssistant.DisplayName() != "Arkiv" {
		t.Error("RoleAssistant display name")
	}
}
