// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/session"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		command Command
		raw     []string
		opts    Options
	}{
		{"no args starts tui", nil, CmdTUI, nil, Options{}},
		{"ask", []string{"ask", "what", "now"}, CmdAsk, []string{"what", "now"}, Options{}},
		{"alias", []string{"signin"}, CmdLogin, []string{}, Options{}},
		{"case insensitive", []string{"HISTORY", "list"}, CmdHistory, []string{"list"}, Options{}},
		{"global flags anywhere", []string{"--json", "keys", "-q", "list"}, CmdKeys, []string{"list"}, Options{JSON: true, Quiet: true}},
		{"config path", []string{"--config", "/tmp/a.toml", "stats"}, CmdStats, []string{}, Options{ConfigPath: "/tmp/a.toml"}},
		{"config equals", []string{"stats", "--config=/tmp/b.toml", "-v"}, CmdStats, []string{}, Options{ConfigPath: "/tmp/b.toml", Verbose: true}},
		{"flags only", []string{"--json"}, CmdTUI, nil, Options{JSON: true}},
		{"unknown", []string{"frobnicate"}, CmdUnknown, []string{}, Options{}},
		{"doctor alias", []string{"status"}, CmdDoctor, []string{}, Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := Parse(tt.argv)
			assert.Equal(t, tt.command, args.Command)
			assert.Equal(t, tt.opts, args.Options)
			if tt.raw != nil {
				assert.Equal(t, tt.raw, args.Raw)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"delete", "--yes", "42", "--format", "json", "--output=out.md", "--", "--not-a-flag"}, "yes")

	assert.Equal(t, "delete", p.Subcommand())
	assert.True(t, p.BoolFlag("yes"), "boolean flag")
	assert.Equal(t, "42", p.Positional(1), "boolean flags do not consume the next argument")
	assert.Equal(t, "json", p.Flag("format"))
	assert.Equal(t, "out.md", p.Flag("output"))
	assert.Equal(t, "--not-a-flag", p.Positional(2), "arguments after -- are positional")
	assert.Equal(t, "md", NewArgParser(nil).FlagOrDefault("format", "md"))
	assert.Equal(t, "", p.Positional(9))
	assert.True(t, p.HasFlag("--format"))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{&UsageError{Message: "bad"}, ExitUsageError},
		{&authflow.ValidationError{Message: authflow.MsgCodeLength}, ExitUsageError},
		{ErrCancelled, ExitCancelled},
		{&ConfigError{Err: errors.New("broken")}, ExitConfigError},
		{fmt.Errorf("load: %w", history.ErrChatNotFound), ExitNotFoundError},
		{keys.ErrKeyNotFound, ExitNotFoundError},
		{ErrNotSignedIn, ExitAuthError},
		{session.ErrSessionExpired, ExitAuthError},
		{&api.APIError{Status: 401, Detail: "expired"}, ExitAuthError},
		{&identity.Error{Status: 400, Message: "Invalid login credentials"}, ExitAuthError},
		{context.DeadlineExceeded, ExitTimeoutError},
		{&url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, ExitNetworkError},
		{errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetExitCode(tt.err), "%v", tt.err)
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestExecute_UnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("", "frobnicate")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestExecute_VersionJSON(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, _ := env.run("", "--json", "version")
	require.Equal(t, ExitSuccess, code)
	data := jsonData[map[string]string](t, stdout)
	assert.Equal(t, Version, data["version"])
}

func TestExecute_ErrorEnvelopeInJSONMode(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, _ := env.run("", "--json", "whoami")
	assert.Equal(t, ExitAuthError, code)
	assert.Contains(t, stdout, `"success": false`)
	assert.Contains(t, stdout, "not signed in")
}
