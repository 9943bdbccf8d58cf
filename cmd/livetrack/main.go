// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Livetrack is the command-line companion to the Livetrack SDK. It
// speaks the same backend protocol as the SDK itself: watch streams
// job updates to stdout as they are polled, status performs a one-shot
// fetch, and version prints build information.
package main

import (
	"fmt"
	"os"

	"github.com/livetrack-foundation/livetrack/cmd/livetrack/cli"
	"github.com/livetrack-foundation/livetrack/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError
		// with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cli.Command{
		Name:    "livetrack",
		Summary: "track backend jobs and stream their progress",
		Subcommands: []*cli.Command{
			watchCommand(),
			statusCommand(),
			{
				Name:    "version",
				Summary: "print version information",
				Run: func(args []string) error {
					fmt.Printf("livetrack %s\n", version.Full())
					return nil
				},
			},
		},
	}
	return root.Execute(os.Args[1:])
}
