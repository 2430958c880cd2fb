// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved chat commands.
//
// Usage:
//
//	arkiv history [list] [--search TEXT] [--limit N]
//	arkiv history show ID
//	arkiv history export ID [--format md|json] [--output FILE]
//	arkiv history delete ID [--yes]
//	arkiv history clear [--yes]

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

// chatSummary is the --json shape of a history entry.
type chatSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Time     string   `json:"time"`
	Messages int      `json:"messages"`
	Files    []string `json:"files"`
	Tokens   int      `json:"tokens"`
}

func summarize(c model.Chat) chatSummary {
	files := c.Files
	if files == nil {
		files = []string{}
	}
	return chatSummary{
		ID:       c.ID.String(),
		Title:    c.Title,
		Time:     c.Time,
		Messages: len(c.Messages),
		Files:    files,
		Tokens:   c.Tokens,
	}
}

// HandleHistory dispatches the history subcommands.
func HandleHistory(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "yes", "y")
	sub := strings.ToLower(p.Subcommand())

	switch sub {
	case "", "list", "ls", "search":
		return historyList(ctx, r, p, sub == "search")
	case "show", "view":
		return historyShow(ctx, r, p)
	case "export":
		return historyExport(ctx, r, p)
	case "delete", "rm":
		return historyDelete(ctx, r, p)
	case "clear":
		return historyClear(ctx, r, p)
	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown history command %q", p.Subcommand()),
			Hint:    "Valid commands: list, show, export, delete, clear",
		}
	}
}

func historyList(ctx context.Context, r *Runtime, p *ArgParser, positionalQuery bool) error {
	index, err := r.History(ctx)
	if err != nil {
		return err
	}
	query := p.Flag("search")
	if positionalQuery && query == "" {
		query = JoinPositionalArgs(p, 1)
	}
	chats, err := index.Search(ctx, query)
	if err != nil {
		return err
	}
	if p.HasFlag("limit") {
		n, err := p.FlagInt("limit")
		if err != nil || n < 0 {
			return &UsageError{Message: "--limit must be a non-negative number"}
		}
		if n < len(chats) {
			chats = chats[:n]
		}
	}

	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, summarize(c))
	}
	return r.emit("history", out, func(w io.Writer) {
		if len(chats) == 0 && query != "" {
			fmt.Fprintf(w, "No chats match %q.\n", query)
			return
		}
		fmt.Fprint(w, history.FormatList(chats))
	})
}

// loadChatArg fetches the chat named by positional 1.
func loadChatArg(ctx context.Context, r *Runtime, p *ArgParser, usage string) (*history.Index, model.Chat, error) {
	ref := p.Positional(1)
	if ref == "" {
		return nil, model.Chat{}, ErrMissingArgument("ID", usage)
	}
	id, err := parseChatID(ref)
	if err != nil {
		return nil, model.Chat{}, err
	}
	index, err := r.History(ctx)
	if err != nil {
		return nil, model.Chat{}, err
	}
	c, err := index.Get(ctx, id)
	if err != nil {
		return nil, model.Chat{}, err
	}
	return index, c, nil
}

func historyShow(ctx context.Context, r *Runtime, p *ArgParser) error {
	_, c, err := loadChatArg(ctx, r, p, "arkiv history show ID")
	if err != nil {
		return err
	}
	return r.emit("history show", c, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render(c.Title))
		fmt.Fprintln(w, RenderField("Chat", c.ID.String()))
		fmt.Fprintln(w, RenderField("Started", c.ID.CreatedAt().Local().Format("2006-01-02 15:04")+" ("+util.FormatAge(c.ID.CreatedAt())+")"))
		if len(c.Files) > 0 {
			fmt.Fprintln(w, RenderField("Files", strings.Join(c.Files, ", ")))
		}
		fmt.Fprintln(w, RenderField("Tokens", util.FormatCount(c.Tokens)))
		fmt.Fprintln(w, RenderSeparator())
		fmt.Fprintln(w)
		r.writeTranscript(w, c.Messages)
	})
}

func historyExport(ctx context.Context, r *Runtime, p *ArgParser) error {
	_, c, err := loadChatArg(ctx, r, p, "arkiv history export ID [--format md|json] [--output FILE]")
	if err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(p.FlagOrDefault("format", "md")) {
	case "md", "markdown":
		data = []byte(history.ExportMarkdown(c))
	case "json":
		data, err = history.ExportJSON(c)
		if err != nil {
			return err
		}
		data = append(data, '\n')
	default:
		return &UsageError{Message: fmt.Sprintf("unknown export format %q", p.Flag("format")), Hint: "Valid formats: md, json"}
	}

	path := p.Flag("output")
	if path == "" {
		if r.Options.JSON {
			return NewJSONResponse("history export", map[string]string{"chat_id": c.ID.String(), "content": string(data)}).Write(r.Out)
		}
		_, err := r.Out.Write(data)
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return NewCommandError("history export", "write", path, err)
	}
	return r.success("history export", "Exported chat "+c.ID.String()+" to "+path,
		map[string]string{"chat_id": c.ID.String(), "path": path})
}

func historyDelete(ctx context.Context, r *Runtime, p *ArgParser) error {
	_, c, err := loadChatArg(ctx, r, p, "arkiv history delete ID")
	if err != nil {
		return err
	}
	ref := c.ID.String()
	if err := r.Prompt.Confirm("history delete "+ref, fmt.Sprintf("delete %q and its documents", c.Title), r.confirmOpts(p)); err != nil {
		return err
	}

	store, err := r.OpenChat(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.DeleteChat(ctx, c.ID); err != nil {
		return err
	}
	return r.success("history delete", "Chat deleted", map[string]string{"chat_id": ref})
}

func historyClear(ctx context.Context, r *Runtime, p *ArgParser) error {
	index, err := r.History(ctx)
	if err != nil {
		return err
	}
	ids, err := index.IDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return r.success("history clear", "History is already empty", map[string]int{"deleted": 0})
	}
	if err := r.Prompt.Confirm("history clear", fmt.Sprintf("delete all %d saved chats", len(ids)), r.confirmOpts(p)); err != nil {
		return err
	}
	if err := index.Clear(ctx); err != nil {
		return err
	}
	r.info("Indexed documents are kept. Run 'arkiv reset all' to remove them too.")
	return r.success("history clear", fmt.Sprintf("Deleted %d chats", len(ids)), map[string]int{"deleted": len(ids)})
}
