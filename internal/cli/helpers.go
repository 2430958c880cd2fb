// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/jeranaias/arkiv-tui/internal/model"
)

// emit writes data as a JSON envelope in --json mode, otherwise runs human.
func (r *Runtime) emit(command string, data any, human func(w io.Writer)) error {
	if r.Options.JSON {
		return NewJSONResponse(command, data).Write(r.Out)
	}
	human(r.Out)
	return nil
}

// success reports a completed action. In --json mode data (or the message)
// becomes the envelope's data.
func (r *Runtime) success(command, msg string, data any) error {
	if data == nil {
		data = map[string]string{"message": msg}
	}
	return r.emit(command, data, func(w io.Writer) {
		fmt.Fprintln(w, SuccessStyle.Render("✓")+" "+msg)
	})
}

// info prints a progress line to stderr unless --quiet or --json is set.
func (r *Runtime) info(format string, a ...any) {
	if r.quiet() {
		return
	}
	fmt.Fprintln(r.Err, DimStyle.Render(fmt.Sprintf(format, a...)))
}

func (r *Runtime) outIsTerminal() bool {
	f, ok := r.Out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderMarkdown renders an answer with glamour on a terminal and returns
// it unchanged otherwise.
func (r *Runtime) renderMarkdown(md string) string {
	if !r.Config.UI.Markdown || !r.outIsTerminal() {
		return md
	}
	width := min(GetTerminalWidth()-4, 100)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// writeTranscript prints the turns of a conversation.
func (r *Runtime) writeTranscript(w io.Writer, messages []model.Message) {
	for _, m := range messages {
		switch {
		case m.IsUser():
			fmt.Fprintln(w, UserStyle.Render(m.Role.DisplayName()+":"))
			fmt.Fprintln(w, m.Content)
		case m.IsError:
			fmt.Fprintln(w, ErrorStyle.Render(m.Role.DisplayName()+":"))
			fmt.Fprintln(w, m.Content)
		default:
			fmt.Fprintln(w, AssistantStyle.Render(m.Role.DisplayName()+":"))
			fmt.Fprintln(w, r.renderMarkdown(m.Content))
		}
		fmt.Fprintln(w)
	}
}

// parseChatID parses a chat id argument.
func parseChatID(s string) (model.ChatID, error) {
	id, err := model.ParseChatID(strings.TrimSpace(s))
	if err != nil {
		return 0, &UsageError{Message: fmt.Sprintf("invalid chat id %q", s), Hint: "Run 'arkiv history' to list chats."}
	}
	return id, nil
}
