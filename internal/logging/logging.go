// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures structured logging for arkiv.
//
// The TUI owns the terminal, so logs go to a file by default. CLI commands
// run with --verbose switch to a human-readable console writer on stderr.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects where and how much to log.
type Options struct {
	Level  string
	File   string // empty writes to Console
	Pretty bool
	// Console receives output when File is empty (defaults to stderr).
	Console io.Writer
}

// Setup builds the root logger. The returned closer releases the log file.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	SetLogLevel(opts.Level)

	var (
		out    io.Writer = opts.Console
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return zerolog.Nop(), closer, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		out, closer = f, f
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: opts.File != ""}
	}

	logger := zerolog.New(out).With().Timestamp().Str("app", "arkiv").Logger()
	return logger, closer, nil
}

// SetLogLevel sets the global zerolog level from a string. Unknown values
// fall back to info.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// =============================================================================
// REDACTION
// =============================================================================

var emailRE = regexp.MustCompile(`(?i)\b([a-z0-9._%+\-])[a-z0-9._%+\-]*@([a-z0-9.\-]+\.[a-z]{2,})\b`)

// RedactEmail keeps the first character and domain of any email address in
// s ("a***@example.com").
func RedactEmail(s string) string {
	return emailRE.ReplaceAllString(s, "${1}***@${2}")
}
