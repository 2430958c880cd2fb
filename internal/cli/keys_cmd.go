// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keys_cmd.go - Gemini API key management.
//
// Usage:
//
//	arkiv keys [list]
//	arkiv keys add KEY
//	arkiv keys delete N|ID [--yes]
//	arkiv keys test N|ID
//	arkiv keys select N|ID|default
//	arkiv keys copy N|ID

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// keyInfo is the --json shape of a stored key. The key itself is masked.
type keyInfo struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Masked    string `json:"masked"`
	CreatedAt string `json:"created_at"`
	Active    bool   `json:"active"`
}

// HandleKeys dispatches the keys subcommands.
func HandleKeys(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "yes", "y")
	if _, err := r.RequireUser(ctx); err != nil {
		return err
	}

	switch strings.ToLower(p.Subcommand()) {
	case "", "list", "ls":
		return keysList(ctx, r)
	case "add":
		return keysAdd(ctx, r, p)
	case "delete", "rm", "remove":
		return keysDelete(ctx, r, p)
	case "test":
		return keysTest(ctx, r, p)
	case "select", "use":
		return keysSelect(ctx, r, p)
	case "copy":
		return keysCopy(ctx, r, p)
	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown keys command %q", p.Subcommand()),
			Hint:    "Valid commands: list, add, delete, test, select, copy",
		}
	}
}

func keysList(ctx context.Context, r *Runtime) error {
	st, err := r.Keys.State(ctx)
	if err != nil {
		return err
	}
	active := st.ActiveIndex()
	out := make([]keyInfo, 0, len(st.Keys))
	for i, k := range st.Keys {
		out = append(out, keyInfo{
			Index:     i + 1,
			ID:        k.ID,
			Masked:    k.Masked(),
			CreatedAt: k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Active:    i == active,
		})
	}

	return r.emit("keys", out, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Gemini API keys (%d/%d)", len(st.Keys), keys.MaxKeys)))
		fmt.Fprintln(w)
		status := "in use"
		if active >= 0 {
			status = "available"
		}
		fmt.Fprintf(w, "  %s %s\n", util.PadRight("0. Default", 28), RenderStatus(status))
		for i, k := range st.Keys {
			status := "available"
			if i == active {
				status = "in use"
			}
			label := fmt.Sprintf("%d. %s", i+1, k.Masked())
			fmt.Fprintf(w, "  %s %s %s\n", util.PadRight(label, 28), RenderStatus(status),
				DimStyle.Render("added "+util.FormatAge(k.CreatedAt)))
		}
		if len(st.Keys) < keys.MaxKeys {
			fmt.Fprintln(w)
			fmt.Fprintln(w, DimStyle.Render("Add a key with: arkiv keys add KEY"))
		}
	})
}

func keysAdd(ctx context.Context, r *Runtime, p *ArgParser) error {
	raw, err := r.argOrSecret(p, 1, "Gemini API key: ")
	if err != nil {
		return err
	}
	r.info("Verifying key...")
	k, err := r.Keys.Add(ctx, raw)
	if err != nil {
		return err
	}
	return r.success("keys add", "Key "+k.Masked()+" added", keyInfo{
		ID:        k.ID,
		Masked:    k.Masked(),
		CreatedAt: k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// argOrSecret returns positional i, reading it without echo when absent.
func (r *Runtime) argOrSecret(p *ArgParser, i int, label string) (string, error) {
	if v := strings.TrimSpace(p.Positional(i)); v != "" {
		return v, nil
	}
	return r.Prompt.Secret(label)
}

// resolveKeyArg maps positional 1 to a stored key.
func (r *Runtime) resolveKeyArg(ctx context.Context, p *ArgParser, usage string) (model.APIKey, error) {
	ref := p.Positional(1)
	if ref == "" {
		return model.APIKey{}, ErrMissingArgument("N|ID", usage)
	}
	k, ok, err := r.Keys.Resolve(ctx, ref)
	if err != nil {
		return model.APIKey{}, err
	}
	if !ok {
		return model.APIKey{}, &UsageError{Message: "the default key cannot be changed", Hint: "Pick a stored key by number, see 'arkiv keys'."}
	}
	return k, nil
}

func keysDelete(ctx context.Context, r *Runtime, p *ArgParser) error {
	k, err := r.resolveKeyArg(ctx, p, "arkiv keys delete N|ID")
	if err != nil {
		return err
	}
	if err := r.Prompt.Confirm("keys delete "+p.Positional(1), "delete key "+k.Masked(), r.confirmOpts(p)); err != nil {
		return err
	}
	if err := r.Keys.Delete(ctx, k.ID); err != nil {
		return err
	}
	return r.success("keys delete", "Key "+k.Masked()+" deleted", map[string]string{"id": k.ID})
}

func keysTest(ctx context.Context, r *Runtime, p *ArgParser) error {
	k, err := r.resolveKeyArg(ctx, p, "arkiv keys test N|ID")
	if err != nil {
		return err
	}
	r.info("Testing %s...", k.Masked())
	if err := r.Keys.Test(ctx, k.ID); err != nil {
		return err
	}
	return r.success("keys test", "Key "+k.Masked()+" is valid", map[string]any{"id": k.ID, "valid": true})
}

func keysSelect(ctx context.Context, r *Runtime, p *ArgParser) error {
	ref := p.Positional(1)
	if ref == "" {
		return ErrMissingArgument("N|ID|default", "arkiv keys select N|ID|default")
	}
	if err := r.Keys.SelectRef(ctx, ref); err != nil {
		return err
	}
	st, err := r.Keys.State(ctx)
	if err != nil {
		return err
	}
	i := st.ActiveIndex()
	if i < 0 {
		return r.success("keys select", "Using the default key", map[string]any{"index": 0})
	}
	return r.success("keys select", fmt.Sprintf("Using Gemini Key %d (%s)", i+1, st.Keys[i].Masked()),
		map[string]any{"index": i + 1, "id": st.Keys[i].ID})
}

func keysCopy(ctx context.Context, r *Runtime, p *ArgParser) error {
	k, err := r.resolveKeyArg(ctx, p, "arkiv keys copy N|ID")
	if err != nil {
		return err
	}
	if r.Clipboard == nil {
		return &UsageError{Message: "clipboard is not available"}
	}
	if err := r.Clipboard(k.Key); err != nil {
		return NewCommandError("keys copy", "copy", "clipboard unavailable", err)
	}
	return r.success("keys copy", "Copied "+k.Masked()+" to the clipboard", map[string]string{"id": k.ID})
}
