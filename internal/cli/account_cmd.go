// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// account_cmd.go - Account settings and usage statistics.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// HandleAccount dispatches the account subcommands:
//
//	arkiv account                 Show the profile
//	arkiv account name NAME       Change the display name
//	arkiv account email EMAIL     Change the email address
//	arkiv account password        Change the password
//	arkiv account delete [--yes]  Delete the account
func HandleAccount(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "yes", "y")
	if _, err := r.RequireUser(ctx); err != nil {
		return err
	}

	switch strings.ToLower(p.Subcommand()) {
	case "", "show", "profile":
		return HandleWhoami(ctx, r, args)

	case "name":
		name := strings.TrimSpace(JoinPositionalArgs(p, 1))
		if name == "" {
			var err error
			if name, err = r.Prompt.Line("Display name: "); err != nil {
				return err
			}
		}
		if err := r.Session.UpdateProfile(ctx, name); err != nil {
			return err
		}
		return r.success("account name", "Profile updated", r.currentUserInfo())

	case "email":
		email, err := r.argOrPrompt(p, 1, "New email: ")
		if err != nil {
			return err
		}
		if err := r.Session.UpdateEmail(ctx, email); err != nil {
			return err
		}
		return r.success("account email",
			fmt.Sprintf("Check %s to confirm the change. The old address stays active until then.", email),
			r.currentUserInfo())

	case "password":
		if r.Variant == authflow.VariantPasswordless {
			return &UsageError{Message: "this build has no passwords"}
		}
		pw, confirm, err := r.newPassword()
		if err != nil {
			return err
		}
		if err := authflow.ValidatePasswords(pw, confirm); err != nil {
			return err
		}
		if err := r.Session.UpdatePassword(ctx, pw); err != nil {
			return err
		}
		return r.success("account password", "Password updated", nil)

	case "delete":
		email := r.currentUserInfo().Email
		if err := r.Prompt.ConfirmPhrase("account delete",
			"This permanently deletes "+email+" together with all documents and chats.",
			"DELETE", r.confirmOpts(p)); err != nil {
			return err
		}
		if err := r.Session.DeleteAccount(ctx); err != nil {
			return err
		}
		return r.success("account delete", "Account deleted", map[string]string{"email": email})

	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown account command %q", p.Subcommand()),
			Hint:    "Valid commands: show, name, email, password, delete",
		}
	}
}

// HandleStats prints the usage counters kept by the backend.
func HandleStats(ctx context.Context, r *Runtime, args Args) error {
	if _, err := r.RequireUser(ctx); err != nil {
		return err
	}
	st, err := r.API.Stats(ctx)
	if err != nil {
		return err
	}
	return r.emit("stats", st, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render("Usage"))
		fmt.Fprintln(w, RenderField("Files processed", util.FormatCount(st.FilesProcessed)))
		fmt.Fprintln(w, RenderField("Tokens used", util.FormatCount(st.TokensUsed)))
	})
}
