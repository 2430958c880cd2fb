// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/arkiv-tui/internal/ui/app"
)

// RunTUI starts the terminal UI and returns the process exit code.
func RunTUI(ctx context.Context, args Args) int {
	stdout, stderr := stdStreams(nil)

	// Console logging would draw over the alternate screen.
	opts := args.Options
	opts.Verbose = false
	r, err := Bootstrap(ctx, opts)
	if err != nil {
		reportError(stdout, stderr, args, err)
		return GetExitCode(err)
	}
	defer r.Close()

	if !IsTTY() || !IsStdoutTTY() {
		err := &TTYRequiredError{Operation: "start the terminal UI"}
		reportError(stdout, stderr, args, err)
		return ExitUsageError
	}
	if err := r.Connect(ctx); err != nil {
		reportError(stdout, stderr, args, err)
		return GetExitCode(err)
	}

	m := app.New(ctx, app.Deps{
		Config:    r.Config,
		Session:   r.Session,
		Keys:      r.Keys,
		Stats:     r.Stats,
		Backend:   r.API,
		Store:     r.Store,
		Variant:   r.Variant,
		Version:   Version,
		Log:       r.Log,
		Clipboard: r.Clipboard,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	r.Log.Info().Str("version", Version).Msg("terminal UI started")
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(stderr, "Error running arkiv: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
