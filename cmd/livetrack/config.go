// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	livetrack "github.com/livetrack-foundation/livetrack"
)

// resolveConfig builds the SDK configuration for a command. A config
// file (--config flag, falling back to LIVETRACK_CONFIG) supplies the
// base; explicit flags override individual fields. Commands work
// without a file as long as --base-url is given.
func resolveConfig(configPath, baseURL, apiKey string, interval time.Duration, debug bool) (livetrack.Config, error) {
	if configPath == "" {
		configPath = os.Getenv("LIVETRACK_CONFIG")
	}

	var cfg livetrack.Config
	if configPath != "" {
		loaded, err := livetrack.LoadConfig(configPath)
		if err != nil {
			return livetrack.Config{}, fmt.Errorf("loading config %s: %w", configPath, err)
		}
		cfg = loaded
	}

	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if interval > 0 {
		cfg.PollInterval = interval
	}
	if debug {
		cfg.Debug = true
	}

	if cfg.BaseURL == "" {
		return livetrack.Config{}, fmt.Errorf("no backend configured: pass --base-url or a config file")
	}
	return cfg, nil
}
