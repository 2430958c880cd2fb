// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("replaced"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "replaced" {
		t.Errorf("got %q, want %q", content, "replaced")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPrefixUTF16(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"日本語のテキスト", 3, "日本語"},
		{"short", 30, "short"},
		{"ab😀cd", 4, "ab😀"},
		{"ab😀cd", 3, "ab"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := PrefixUTF16(tt.in, tt.n); got != tt.want {
			t.Errorf("PrefixUTF16(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestUTF16Len(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"日本語", 3},
		{"😀", 2},
		{"a😀b", 4},
	}
	for _, tt := range tests {
		if got := UTF16Len(tt.in); got != tt.want {
			t.Errorf("UTF16Len(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello world", 8); got != "hello..." {
		t.Errorf("TruncateWidth ascii = %q", got)
	}
	// Each CJK character occupies two cells.
	got := TruncateWidth("日本語日本語", 7)
	if StringWidth(got) > 7 {
		t.Errorf("TruncateWidth CJK too wide: %q (%d)", got, StringWidth(got))
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("abcdefgh", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight width = %d", StringWidth(got))
	}
}

func TestFirstNonEmptyAndTruthy(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Errorf("FirstNonEmpty = %q", got)
	}
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = false", v)
		}
	}
	if IsTruthy("off") {
		t.Error("IsTruthy(off) = true")
	}
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatCount(t *testing.T) {
	if got := FormatCount(12480); got != "12,480" {
		t.Errorf("FormatCount = %q", got)
	}
	if got := FormatCount(7); got != "7" {
		t.Errorf("FormatCount = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(1500); got != "1.5 kB" {
		t.Errorf("FormatBytes = %q", got)
	}
	if got := FormatBytes(-1); got != "0 B" {
		t.Errorf("FormatBytes negative = %q", got)
	}
}

func TestFormatAge(t *testing.T) {
	if FormatAge(time.Time{}) != "" {
		t.Error("zero time should render empty")
	}
	if got := FormatAge(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Errorf("FormatAge = %q", got)
	}
}
