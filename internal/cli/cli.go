// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the arkiv command line: argument parsing, the
// shared runtime every command bootstraps, and one handler per command.
// Running arkiv without a command starts the terminal UI.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Version information (overridden at build time with -ldflags).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdLogin
	CmdLogout
	CmdSignup
	CmdVerify
	CmdForgot
	CmdResetPassword
	CmdMagicLink
	CmdOAuth
	CmdWhoami
	CmdUpload
	CmdHistory
	CmdKeys
	CmdAccount
	CmdStats
	CmdReset
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[string]Command{
	"tui":            CmdTUI,
	"ask":            CmdAsk,
	"chat":           CmdChat,
	"login":          CmdLogin,
	"signin":         CmdLogin,
	"logout":         CmdLogout,
	"signout":        CmdLogout,
	"signup":         CmdSignup,
	"register":       CmdSignup,
	"verify":         CmdVerify,
	"forgot":         CmdForgot,
	"reset-password": CmdResetPassword,
	"magic-link":     CmdMagicLink,
	"oauth":          CmdOAuth,
	"whoami":         CmdWhoami,
	"upload":         CmdUpload,
	"history":        CmdHistory,
	"chats":          CmdHistory,
	"keys":           CmdKeys,
	"key":            CmdKeys,
	"account":        CmdAccount,
	"stats":          CmdStats,
	"usage":          CmdStats,
	"reset":          CmdReset,
	"config":         CmdConfig,
	"doctor":         CmdDoctor,
	"diag":           CmdDoctor,
	"status":         CmdDoctor,
	"version":        CmdVersion,
	"--version":      CmdVersion,
	"help":           CmdHelp,
	"--help":         CmdHelp,
	"-h":             CmdHelp,
}

// Options are the global flags accepted before or after any command.
type Options struct {
	JSON       bool
	Verbose    bool
	Quiet      bool
	ConfigPath string
}

// Args holds parsed CLI arguments.
type Args struct {
	Command Command
	// Name is the command word as typed.
	Name string
	// Raw are the arguments left after the command word and global flags.
	Raw []string
	Options
}

const usageText = `arkiv - chat with your documents from the terminal

Upload PDFs, Office files, text and CSV to the Arkiv backend and ask
questions answered from their contents.

Usage:
  arkiv                          Start the terminal UI (default)
  arkiv ask "question"           Ask one question in a new chat
  arkiv chat [--chat ID]         Interactive chat with slash commands

Account:
  arkiv login [email]            Sign in with email and password
  arkiv logout                   Sign out
  arkiv signup [email]           Create an account
    --name NAME                  Display name
  arkiv verify EMAIL CODE        Confirm an email with its 6-digit code
    --type signup|email|magiclink
    --resend                     Send a fresh code instead
  arkiv forgot EMAIL             Email a password reset code
  arkiv reset-password EMAIL CODE
                                 Choose a new password with the reset code
  arkiv magic-link EMAIL         Email a one-time sign-in code
  arkiv oauth [provider]         Print the browser sign-in link, then read
                                 the redirect URL from stdin
  arkiv whoami                   Show the signed-in user
  arkiv account name NAME        Change the display name
  arkiv account email EMAIL      Change the email (sends a confirmation)
  arkiv account password         Change the password
  arkiv account delete           Delete the account and all its data

Documents:
  arkiv upload FILE|DIR...       Upload documents into a chat
    --chat ID                    Upload into an existing chat
  arkiv reset [chat ID|all]      Clear indexed documents
  arkiv stats                    Show files processed and tokens used

History:
  arkiv history [list]           List chats, newest first
    --search TEXT                Only chats matching TEXT
  arkiv history show ID          Print a chat transcript
  arkiv history export ID        Export a chat
    --format md|json             Export format (default: md)
    --output FILE                Write to FILE instead of stdout
  arkiv history delete ID        Delete a chat
  arkiv history clear            Delete every chat

API keys (bring your own Gemini key, up to 3):
  arkiv keys [list]              List stored keys
  arkiv keys add KEY             Verify and store a key
  arkiv keys delete N|ID         Remove a key
  arkiv keys test N|ID           Verify a stored key again
  arkiv keys select N|ID|default Choose the key sent with requests
  arkiv keys copy N|ID           Copy a key to the clipboard

Configuration:
  arkiv config [show]            Show the effective configuration
  arkiv config get KEY           Print one value (e.g. api.base_url)
  arkiv config set KEY VALUE     Change a value and save it
  arkiv config reset             Restore the defaults
  arkiv config path              Print the config file location
  arkiv doctor                   Check the setup and the backend
  arkiv version                  Show version information

Global flags:
  --json                         Machine-readable output
  -v, --verbose                  Log to stderr
  -q, --quiet                    Only print errors and results
  --config PATH                  Use a specific config file
  -y, --yes                      Skip confirmation prompts

Environment:
  ARKIV_HOME                     Config directory (default: ~/.arkiv)
  ARKIV_API_URL                  Backend base URL
  ARKIV_LOG_LEVEL                Log level (debug, info, warn, error)
  NO_COLOR                       Disable colors
`

// Usage returns the help text.
func Usage() string {
	return usageText
}

// Parse parses argv (without the program name).
func Parse(argv []string) Args {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		args.Command = CmdTUI
		return args
	}

	args.Name = strings.ToLower(remaining[0])
	args.Raw = remaining[1:]
	if cmd, ok := commandNames[args.Name]; ok {
		args.Command = cmd
	} else {
		args.Command = CmdUnknown
	}
	return args
}

func parseGlobalFlags(argv []string) ([]string, Args) {
	var (
		remaining []string
		args      Args
	)
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "--config":
			if i+1 < len(argv) {
				i++
				args.ConfigPath = argv[i]
			}
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// handler runs one command against a bootstrapped runtime.
type handler func(ctx context.Context, r *Runtime, args Args) error

var handlers = map[Command]handler{
	CmdAsk:           HandleAsk,
	CmdChat:          HandleChat,
	CmdLogin:         HandleLogin,
	CmdLogout:        HandleLogout,
	CmdSignup:        HandleSignup,
	CmdVerify:        HandleVerify,
	CmdForgot:        HandleForgot,
	CmdResetPassword: HandleResetPassword,
	CmdMagicLink:     HandleMagicLink,
	CmdOAuth:         HandleOAuth,
	CmdWhoami:        HandleWhoami,
	CmdUpload:        HandleUpload,
	CmdHistory:       HandleHistory,
	CmdKeys:          HandleKeys,
	CmdAccount:       HandleAccount,
	CmdStats:         HandleStats,
	CmdReset:         HandleReset,
	CmdConfig:        HandleConfig,
	CmdDoctor:        HandleDoctor,
}

// Execute runs args.Command and returns the process exit code. The runtime
// is built with Bootstrap unless r is non-nil.
func Execute(ctx context.Context, args Args, r *Runtime) int {
	stdout, stderr := stdStreams(r)

	switch args.Command {
	case CmdHelp:
		fmt.Fprint(stdout, usageText)
		return ExitSuccess
	case CmdVersion:
		return handleVersion(stdout, args)
	case CmdUnknown:
		err := &UsageError{Message: fmt.Sprintf("unknown command %q", args.Name), Hint: "Run 'arkiv help' for usage."}
		reportError(stdout, stderr, args, err)
		return ExitUsageError
	}

	h, ok := handlers[args.Command]
	if !ok {
		reportError(stdout, stderr, args, fmt.Errorf("command %q has no handler", args.Name))
		return ExitGeneralError
	}

	if r == nil {
		var err error
		r, err = Bootstrap(ctx, args.Options)
		if err != nil {
			reportError(stdout, stderr, args, err)
			return GetExitCode(err)
		}
		defer r.Close()
	}

	if err := h(ctx, r, args); err != nil {
		reportError(r.Out, r.Err, args, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func stdStreams(r *Runtime) (io.Writer, io.Writer) {
	if r != nil {
		return r.Out, r.Err
	}
	return defaultStdout(), defaultStderr()
}

func reportError(stdout, stderr io.Writer, args Args, err error) {
	if args.JSON {
		_ = NewJSONErrorResponse(args.Name, err).Write(stdout)
		return
	}
	DisplayError(stderr, err)
}

func handleVersion(w io.Writer, args Args) int {
	info := map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
	}
	if args.JSON {
		_ = NewJSONResponse("version", info).Write(w)
		return ExitSuccess
	}
	fmt.Fprintf(w, "arkiv %s\n", Version)
	fmt.Fprintf(w, "  Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:  %s\n", BuildDate)
	return ExitSuccess
}
