// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	livetrack "github.com/livetrack-foundation/livetrack"
	"github.com/livetrack-foundation/livetrack/cmd/livetrack/cli"
	"github.com/livetrack-foundation/livetrack/job"
)

func watchCommand() *cli.Command {
	var configPath string
	var baseURL string
	var apiKey string
	var interval time.Duration
	var debug bool

	return &cli.Command{
		Name:    "watch",
		Summary: "stream updates for one or more jobs",
		Description: "Watch subscribes to the given job ids and prints every state\n" +
			"change as the backend reports it. The command exits when all\n" +
			"watched jobs reach a terminal status, or on Ctrl-C.",
		Usage: "livetrack watch [flags] <job-id>...",
		Examples: []cli.Example{
			{
				Description: "watch two jobs against a local backend",
				Command:     "livetrack watch --base-url http://localhost:8787 job-1 job-2",
			},
			{
				Description: "watch with a config file and debug logging",
				Command:     "livetrack watch --config livetrack.yaml --debug job-1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path (defaults to LIVETRACK_CONFIG)")
			flagSet.StringVar(&baseURL, "base-url", "", "backend origin, overrides the config file")
			flagSet.StringVar(&apiKey, "api-key", "", "bearer token, overrides the config file")
			flagSet.DurationVar(&interval, "interval", 0, "poll interval, overrides the config file")
			flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one job id is required")
			}
			cfg, err := resolveConfig(configPath, baseURL, apiKey, interval, debug)
			if err != nil {
				return err
			}
			return runWatch(cfg, args, debug)
		},
	}
}

func runWatch(cfg livetrack.Config, jobIDs []string, debug bool) error {
	logger := cli.NewCommandLogger(debug).With("command", "watch")

	sdk, err := livetrack.New(cfg, livetrack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sdk.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Subscribe before connecting so the connect pass covers every id.
	changes, cancelChanges := sdk.Store().Changes()
	defer cancelChanges()

	if err := sdk.Connect(ctx); err != nil {
		return err
	}
	if err := sdk.SubscribeAll(ctx, jobIDs); err != nil {
		return err
	}

	// Seed the pending set; immediate fetches may already have
	// resolved some jobs terminally.
	pending := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		pending[id] = true
	}
	for _, id := range jobIDs {
		if snapshot, found := sdk.Store().Get(id); found {
			printUpdate(snapshot)
			if snapshot.IsTerminal() {
				delete(pending, id)
			}
		}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-changes:
			if !ok {
				return nil
			}
			if !pending[snapshot.JobID] {
				continue
			}
			printUpdate(snapshot)
			if snapshot.IsTerminal() {
				delete(pending, snapshot.JobID)
			}
		}
	}
	return nil
}

func printUpdate(snapshot job.Job) {
	line := fmt.Sprintf("%s\t%-10s\t%3d%%", snapshot.JobID, snapshot.Status, snapshot.Progress)
	if snapshot.Stage != nil && snapshot.Stage.Name != "" {
		line += fmt.Sprintf("\t%s (%d/%d)", snapshot.Stage.Name, snapshot.Stage.Current, snapshot.Stage.Total)
	}
	if snapshot.Error != nil && snapshot.Error.Message != "" {
		line += "\t" + snapshot.Error.Message
	}
	fmt.Println(line)
}
