// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation of destructive actions.
//
//  1. --yes proceeds without prompting.
//  2. --json mode and piped input require --yes.
//  3. Otherwise the user is asked, and anything but yes cancels.

package cli

import (
	"fmt"
	"strings"
)

// ConfirmationOptions carries the flags that affect prompting.
type ConfirmationOptions struct {
	Yes      bool
	JSONMode bool
}

func (r *Runtime) confirmOpts(args *ArgParser) ConfirmationOptions {
	return ConfirmationOptions{
		Yes:      args.BoolFlag("yes") || args.BoolFlag("y"),
		JSONMode: r.Options.JSON,
	}
}

func (p *Prompter) requirePrompt(command string, opts ConfirmationOptions) error {
	if opts.JSONMode || !p.Interactive() {
		return &UsageError{
			Message: "confirmation required",
			Hint:    fmt.Sprintf("To proceed without a prompt, run:\n  arkiv %s --yes", command),
		}
	}
	return nil
}

// Confirm asks "Are you sure you want to <action>?". It returns
// ErrCancelled unless the user answers yes.
func (p *Prompter) Confirm(command, action string, opts ConfirmationOptions) error {
	if opts.Yes {
		return nil
	}
	if err := p.requirePrompt(command, opts); err != nil {
		return err
	}
	fmt.Fprintln(p.out)
	answer, err := p.Line(fmt.Sprintf("Are you sure you want to %s? [y/N]: ", action))
	if err != nil {
		return err
	}
	if !isYes(answer) {
		return ErrCancelled
	}
	return nil
}

// ConfirmPhrase requires the user to type phrase exactly.
func (p *Prompter) ConfirmPhrase(command, action, phrase string, opts ConfirmationOptions) error {
	if opts.Yes {
		return nil
	}
	if err := p.requirePrompt(command, opts); err != nil {
		return err
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, ErrorStyle.Render("DANGER: "+action))
	fmt.Fprintln(p.out, ErrorStyle.Render("This cannot be undone."))
	fmt.Fprintln(p.out)
	answer, err := p.Line(fmt.Sprintf("To confirm, type %s: ", phrase))
	if err != nil {
		return err
	}
	if answer != phrase {
		return ErrCancelled
	}
	return nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}
