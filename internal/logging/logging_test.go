// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
		"off":     zerolog.Disabled,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupConsole(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	logger, closer, err := Setup(Options{Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer closer.Close()

	logger.Debug().Str("op", "ask").Msg("request")
	out := buf.String()
	if !strings.Contains(out, `"op":"ask"`) || !strings.Contains(out, `"app":"arkiv"`) {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestSetupFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	path := filepath.Join(t.TempDir(), "logs", "arkiv.log")
	logger, closer, err := Setup(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info().Msg("hello")
	logger.Debug().Msg("filtered")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") || strings.Contains(string(data), "filtered") {
		t.Errorf("log file content: %s", data)
	}
}

func TestRedactEmail(t *testing.T) {
	got := RedactEmail("sign in for ada.lovelace@example.com failed")
	if got != "sign in for a***@example.com failed" {
		t.Errorf("RedactEmail = %q", got)
	}
	if RedactEmail("no address here") != "no address here" {
		t.Error("RedactEmail changed text without an address")
	}
}
