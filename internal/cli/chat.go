// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - The "arkiv chat" REPL.
//
// Interactive commands (during chat):
//
//	/add PATH...        Stage files or folders
//	/upload             Upload the staged files
//	/files              Show staged and processed files
//	/new                Start a new chat
//	/history            List saved chats
//	/load ID            Switch to a saved chat
//	/delete ID          Delete a saved chat
//	/reset [chat|all]   Clear indexed documents
//	/key [N|default]    Show or choose the API key
//	/stats              Show usage counters
//	/help               Show commands
//	/quit               Exit (Ctrl+D works too)
//
// Ctrl+C while waiting for an answer cancels the question.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/config"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/util"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")).
			Bold(true)
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads REPL input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	c := &ChatCLI{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads one line, adding non-empty input to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close writes the history (0600) and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// plainReader reads lines from piped input.
type plainReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

func (p *plainReader) ReadInput(prompt string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

func (p *plainReader) Close() {}

// =============================================================================
// SESSION
// =============================================================================

type chatSession struct {
	r     *Runtime
	store *chat.Store
	in    lineReader
	out   io.Writer
	asked int
}

// HandleChat runs the REPL over the user's chat store.
func HandleChat(ctx context.Context, r *Runtime, args Args) error {
	if r.Options.JSON {
		return &UsageError{Message: "chat is interactive", Hint: "Use 'arkiv ask --json' for machine-readable answers."}
	}
	p := NewArgParser(args.Raw)

	// Questions outlive a Ctrl+C aimed at them; only the store is cancelled.
	base := context.WithoutCancel(ctx)
	store, err := r.openChatFor(base, p.Flag("chat"))
	if err != nil {
		return err
	}
	defer store.Close()

	s := &chatSession{r: r, store: store, out: r.Out}
	if r.Prompt.Interactive() {
		dir, err := config.ConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		s.in = NewChatCLI(filepath.Join(dir, "chat_history"))
	} else {
		s.in = &plainReader{sc: bufio.NewScanner(r.In), out: r.Out}
	}
	defer s.in.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			store.Cancel()
		}
	}()

	if !r.quiet() {
		s.welcome()
	}
	for {
		input, err := s.in.ReadInput(promptStyle.Render("arkiv> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				s.goodbye()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
			s.goodbye()
			return nil
		case strings.HasPrefix(input, "/"):
			quit, err := s.command(base, input)
			if err != nil {
				DisplayError(r.Err, err)
			}
			if quit {
				s.goodbye()
				return nil
			}
		default:
			if err := s.ask(base, input); err != nil {
				DisplayError(r.Err, err)
			}
		}
	}
}

func (s *chatSession) welcome() {
	snap := s.store.Snapshot()
	fmt.Fprintln(s.out, welcomeStyle.Render("Arkiv")+" "+DimStyle.Render("chat with your documents"))
	if !snap.Ready {
		fmt.Fprintln(s.out, DimStyle.Render("No documents yet. Add some with /add PATH, then /upload."))
	}
	if len(snap.Messages) > 0 {
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("Continuing chat %s (%d messages)", snap.ChatID, len(snap.Messages))))
	}
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

func (s *chatSession) goodbye() {
	if s.r.quiet() {
		return
	}
	snap := s.store.Snapshot()
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("%d question(s) · %s tokens in this chat",
		s.asked, util.FormatCount(snap.Tokens))))
}

func (s *chatSession) ask(ctx context.Context, question string) error {
	snap := s.store.Snapshot()
	if !snap.CanSend() {
		return &UsageError{Message: snap.Placeholder(), Hint: "Add documents with /add PATH, then /upload."}
	}
	reply, err := s.store.Send(ctx, question)
	if err != nil {
		return err
	}
	s.asked++
	fmt.Fprintln(s.out)
	if reply.IsError {
		fmt.Fprintln(s.out, ErrorStyle.Render(reply.Content))
	} else {
		fmt.Fprintln(s.out, s.r.renderMarkdown(reply.Content))
	}
	fmt.Fprintln(s.out)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = `Commands:
  /add PATH...        Stage files or folders
  /upload             Upload the staged files
  /files              Show staged and processed files
  /new                Start a new chat
  /history            List saved chats
  /load ID            Switch to a saved chat
  /delete ID          Delete a saved chat
  /reset [chat|all]   Clear indexed documents
  /key [N|default]    Show or choose the API key
  /stats              Show usage counters
  /help               Show this help
  /quit               Exit`

// command runs a slash command and reports whether the REPL should exit.
func (s *chatSession) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/h", "/?":
		fmt.Fprintln(s.out, chatHelp)

	case "/add":
		if len(args) == 0 {
			return false, ErrMissingArgument("PATH", "/add PATH...")
		}
		added, err := s.r.stageArgs(s.store, args)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Selected %d file(s). Run /upload to index them.\n", len(added))

	case "/upload":
		staged := s.store.Snapshot().Staged
		if len(staged) == 0 {
			return false, chat.ErrNothingStaged
		}
		res, err := s.r.upload(ctx, s.store, staged)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("✓")+fmt.Sprintf(" Processed %d file(s): %s",
			len(res.FilesProcessed), strings.Join(res.FilesProcessed, ", ")))

	case "/files":
		s.printFiles()

	case "/new":
		if err := s.store.StartNewChat(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Started a new chat.")

	case "/history":
		fmt.Fprint(s.out, history.FormatList(s.store.Snapshot().History))

	case "/load":
		if len(args) == 0 {
			return false, ErrMissingArgument("ID", "/load ID")
		}
		id, err := parseChatID(args[0])
		if err != nil {
			return false, err
		}
		if err := s.store.LoadChatID(ctx, id); err != nil {
			return false, err
		}
		snap := s.store.Snapshot()
		fmt.Fprintln(s.out)
		s.r.writeTranscript(s.out, snap.Messages)
		fmt.Fprintln(s.out, DimStyle.Render("Loaded chat "+snap.ChatID.String()))

	case "/delete":
		if len(args) == 0 {
			return false, ErrMissingArgument("ID", "/delete ID")
		}
		id, err := parseChatID(args[0])
		if err != nil {
			return false, err
		}
		if err := s.store.DeleteChat(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Chat deleted.")

	case "/reset":
		scope := chat.ScopeChat
		msg := "Chat documents cleared"
		if len(args) > 0 && (args[0] == "all" || args[0] == "global") {
			scope = chat.ScopeGlobal
			msg = "Knowledge base cleared successfully!"
		}
		if err := s.store.ResetKnowledgeBase(ctx, scope); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("✓")+" "+msg)

	case "/key", "/keys":
		return false, s.key(ctx, args)

	case "/stats":
		st, err := s.r.API.Stats(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, RenderField("Files processed", util.FormatCount(st.FilesProcessed)))
		fmt.Fprintln(s.out, RenderField("Tokens used", util.FormatCount(st.TokensUsed)))

	default:
		return false, &UsageError{Message: "Unknown command " + name, Hint: "Type /help for commands."}
	}
	return false, nil
}

func (s *chatSession) printFiles() {
	snap := s.store.Snapshot()
	if len(snap.Staged) == 0 && len(snap.Processed) == 0 {
		fmt.Fprintln(s.out, "No files in this chat.")
		return
	}
	for _, f := range snap.Staged {
		fmt.Fprintf(s.out, "  %s %s (%s)\n", RenderStatus("pending"), f.Name, util.FormatBytes(f.Size))
	}
	for _, name := range snap.Processed {
		fmt.Fprintf(s.out, "  %s %s\n", RenderStatus("ok"), name)
	}
}

func (s *chatSession) key(ctx context.Context, args []string) error {
	km := s.r.Keys
	if len(args) > 0 {
		if err := km.SelectRef(ctx, args[0]); err != nil {
			return err
		}
	}
	st, err := km.State(ctx)
	if err != nil {
		return err
	}
	if i := st.ActiveIndex(); i >= 0 {
		fmt.Fprintf(s.out, "Using Gemini Key %d (%s)\n", i+1, st.Keys[i].Masked())
	} else {
		fmt.Fprintln(s.out, "Using the default key")
	}
	return nil
}
