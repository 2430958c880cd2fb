// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot document commands: ask, upload and reset.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

const supportedTypesHint = "Supported: PDF, images, CSV, TXT, Markdown, Word, Excel, PowerPoint"

// ErrNoDocuments is returned when a question is asked before anything has
// been uploaded.
var ErrNoDocuments = &UsageError{
	Message: "no documents uploaded yet",
	Hint:    "Run 'arkiv upload FILE...' first.",
}

// openChatFor opens the chat store and, when chatRef is set, loads that
// chat.
func (r *Runtime) openChatFor(ctx context.Context, chatRef string) (*chat.Store, error) {
	store, err := r.OpenChat(ctx)
	if err != nil {
		return nil, err
	}
	if chatRef != "" {
		id, err := parseChatID(chatRef)
		if err == nil {
			err = store.LoadChatID(ctx, id)
		}
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// stageArgs stages the supported files among args.
func (r *Runtime) stageArgs(store *chat.Store, args []string) ([]chat.StagedFile, error) {
	paths, unreadable := chat.ExpandPaths(args)
	for _, a := range unreadable {
		fmt.Fprintln(r.Err, WarningStyle.Render("Cannot read "+a))
	}
	added := store.StageFiles(paths...)
	if len(added) < len(paths) {
		r.info("Skipped %d unsupported file(s). %s", len(paths)-len(added), supportedTypesHint)
	}
	if len(added) == 0 {
		return nil, &UsageError{Message: "no supported files to upload", Hint: supportedTypesHint}
	}
	return added, nil
}

// uploadResult is the --json shape of an upload.
type uploadResult struct {
	ChatID         string   `json:"chat_id"`
	FilesProcessed []string `json:"files_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	Tokens         int      `json:"tokens"`
}

func (r *Runtime) upload(ctx context.Context, store *chat.Store, staged []chat.StagedFile) (uploadResult, error) {
	var total int64
	for _, f := range staged {
		total += f.Size
	}
	r.info("Uploading %d file(s) (%s)...", len(staged), util.FormatBytes(total))

	res, err := store.Upload(ctx)
	if err != nil {
		return uploadResult{}, fmt.Errorf("%s: %w", api.MsgUploadFailed, err)
	}
	snap := store.Snapshot()
	return uploadResult{
		ChatID:         snap.ChatID.String(),
		FilesProcessed: res.FilesProcessed,
		ChunksCreated:  res.ChunksCreated,
		Tokens:         snap.Tokens,
	}, nil
}

// =============================================================================
// ASK
// =============================================================================

// HandleAsk asks one question. --file uploads documents first and --chat
// continues an existing chat.
func HandleAsk(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	question := strings.TrimSpace(JoinPositionalArgs(p, 0))
	if question == "" {
		return ErrMissingArgument("QUESTION", `arkiv ask "What does the contract say about renewal?"`)
	}

	store, err := r.openChatFor(ctx, p.Flag("chat"))
	if err != nil {
		return err
	}
	defer store.Close()

	if files := p.Flag("file"); files != "" {
		staged, err := r.stageArgs(store, strings.Split(files, ","))
		if err != nil {
			return err
		}
		if _, err := r.upload(ctx, store, staged); err != nil {
			return err
		}
	}
	if !store.Snapshot().Ready {
		return ErrNoDocuments
	}

	r.info("Thinking...")
	reply, err := store.Send(ctx, question)
	if err != nil {
		return err
	}
	if reply.IsError {
		return errors.New(reply.Content)
	}

	snap := store.Snapshot()
	data := map[string]any{
		"chat_id":  snap.ChatID.String(),
		"question": question,
		"answer":   reply.Content,
		"tokens":   snap.Tokens,
	}
	return r.emit("ask", data, func(w io.Writer) {
		fmt.Fprintln(w, r.renderMarkdown(reply.Content))
		if !r.quiet() {
			fmt.Fprintln(r.Err, DimStyle.Render(fmt.Sprintf("chat %s · %s tokens", snap.ChatID, util.FormatCount(snap.Tokens))))
		}
	})
}

// =============================================================================
// UPLOAD
// =============================================================================

// HandleUpload uploads files and folders as one batch.
func HandleUpload(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	if p.PositionalCount() == 0 {
		return ErrMissingArgument("FILE", "arkiv upload FILE|DIR... [--chat ID]")
	}

	store, err := r.openChatFor(ctx, p.Flag("chat"))
	if err != nil {
		return err
	}
	defer store.Close()

	staged, err := r.stageArgs(store, p.PositionalFrom(0))
	if err != nil {
		return err
	}
	res, err := r.upload(ctx, store, staged)
	if err != nil {
		return err
	}
	return r.emit("upload", res, func(w io.Writer) {
		fmt.Fprintln(w, SuccessStyle.Render("✓")+fmt.Sprintf(" Processed %d file(s)", len(res.FilesProcessed)))
		for _, name := range res.FilesProcessed {
			fmt.Fprintln(w, "  "+name)
		}
		fmt.Fprintln(w, RenderField("Chat", res.ChatID))
		fmt.Fprintln(w, RenderField("Chunks", util.FormatCount(res.ChunksCreated)))
		fmt.Fprintln(w, RenderField("Tokens", util.FormatCount(res.Tokens)))
	})
}

// =============================================================================
// RESET
// =============================================================================

// HandleReset clears indexed documents: "reset chat ID" for one chat, or
// "reset all" for the whole knowledge base and chat history.
func HandleReset(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "yes", "y")
	opts := r.confirmOpts(p)

	switch strings.ToLower(p.Subcommand()) {
	case "chat":
		ref := p.Positional(1)
		if ref == "" {
			return ErrMissingArgument("ID", "arkiv reset chat ID")
		}
		store, err := r.openChatFor(ctx, ref)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := r.Prompt.Confirm("reset chat "+ref, "remove the documents of chat "+ref, opts); err != nil {
			return err
		}
		if err := store.ResetKnowledgeBase(ctx, chat.ScopeChat); err != nil {
			return fmt.Errorf("%s: %w", api.MsgClearFailed, err)
		}
		return r.success("reset", "Chat documents cleared", map[string]string{"scope": "chat", "chat_id": ref})

	case "all", "global":
		store, err := r.OpenChat(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := r.Prompt.Confirm("reset all", "erase every document and your chat history", opts); err != nil {
			return err
		}
		if err := store.ResetKnowledgeBase(ctx, chat.ScopeGlobal); err != nil {
			return fmt.Errorf("%s: %w", api.MsgClearFailed, err)
		}
		return r.success("reset", "Knowledge base cleared successfully!", map[string]string{"scope": "global"})

	case "":
		return ErrMissingArgument("chat ID|all", "arkiv reset chat ID | arkiv reset all")
	default:
		return &UsageError{Message: fmt.Sprintf("unknown reset scope %q", p.Subcommand()), Hint: "Usage: arkiv reset chat ID | arkiv reset all"}
	}
}
