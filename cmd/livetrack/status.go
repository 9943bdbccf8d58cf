// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	livetrack "github.com/livetrack-foundation/livetrack"
	"github.com/livetrack-foundation/livetrack/cmd/livetrack/cli"
)

func statusCommand() *cli.Command {
	var configPath string
	var baseURL string
	var apiKey string
	var debug bool

	return &cli.Command{
		Name:    "status",
		Summary: "fetch one job and print its snapshot as JSON",
		Usage:   "livetrack status [flags] <job-id>",
		Examples: []cli.Example{
			{
				Description: "print the current snapshot of a job",
				Command:     "livetrack status --base-url http://localhost:8787 job-1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path (defaults to LIVETRACK_CONFIG)")
			flagSet.StringVar(&baseURL, "base-url", "", "backend origin, overrides the config file")
			flagSet.StringVar(&apiKey, "api-key", "", "bearer token, overrides the config file")
			flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one job id is required")
			}
			cfg, err := resolveConfig(configPath, baseURL, apiKey, 0, debug)
			if err != nil {
				return err
			}
			return runStatus(cfg, args[0], debug)
		},
	}
}

func runStatus(cfg livetrack.Config, jobID string, debug bool) error {
	logger := cli.NewCommandLogger(debug).With("command", "status")

	sdk, err := livetrack.New(cfg, livetrack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sdk.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Subscribe performs the fetch; the poll loop itself never starts.
	if err := sdk.Subscribe(ctx, jobID); err != nil {
		return err
	}

	snapshot, found := sdk.Store().Get(jobID)
	if !found {
		fmt.Fprintf(os.Stderr, "job %s not found\n", jobID)
		return &cli.ExitError{Code: 1}
	}

	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
