// arkiv - chat with your documents from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/arkiv-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	args := cli.Parse(os.Args[1:])

	if args.Command == cli.CmdTUI {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()
		return cli.RunTUI(ctx, args)
	}

	// The chat REPL handles Ctrl+C itself to cancel the pending question.
	sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
	if args.Command == cli.CmdChat {
		sigs = sigs[1:]
	}
	ctx, stop := signal.NotifyContext(context.Background(), sigs...)
	defer stop()
	return cli.Execute(ctx, args, nil)
}
