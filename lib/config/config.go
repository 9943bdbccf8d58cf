// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the Livetrack SDK and its
// command-line tools.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Backend configures the job backend connection.
	Backend BackendConfig `yaml:"backend"`

	// Bridge configures the platform notification bridge.
	Bridge BridgeConfig `yaml:"bridge"`

	// Notifications configures lifecycle behavior for surfaced jobs.
	Notifications NotificationsConfig `yaml:"notifications"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Backend       *BackendConfig       `yaml:"backend,omitempty"`
	Bridge        *BridgeConfig        `yaml:"bridge,omitempty"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	Logging       *LoggingConfig       `yaml:"logging,omitempty"`
}

// BackendConfig configures the job backend connection.
type BackendConfig struct {
	// BaseURL is the backend origin, e.g. "https://api.example.dev".
	// Required.
	BaseURL string `yaml:"base_url"`

	// BasePath prefixes every request path.
	// Default: /v1
	BasePath string `yaml:"base_path"`

	// APIKey is sent as a bearer token on every request.
	APIKey string `yaml:"api_key"`

	// PollInterval is the reconciliation tick period, as a Go
	// duration string.
	// Default: 5s
	PollInterval string `yaml:"poll_interval"`

	// Timeout bounds each individual job fetch.
	// Default: 30s
	Timeout string `yaml:"timeout"`

	// InitialJobIDs are subscribed as soon as the poller connects.
	InitialJobIDs []string `yaml:"initial_job_ids"`
}

// BridgeConfig configures the platform notification bridge.
type BridgeConfig struct {
	// SocketPath is the Unix socket path of the platform host process.
	// Default: /run/livetrack/bridge.sock
	SocketPath string `yaml:"socket_path"`

	// Platform selects the notification surface: "ios" or "android".
	// Default: ios
	Platform string `yaml:"platform"`
}

// NotificationsConfig configures lifecycle behavior for surfaced jobs.
type NotificationsConfig struct {
	// DismissAfter is how long a finished job's notification stays
	// visible before automatic dismissal. Empty uses the platform
	// default (4h on iOS, 5s on Android).
	DismissAfter string `yaml:"dismiss_after"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the file fills in the
// required fields (the backend URL at minimum).
func Default() *Config {
	return &Config{
		Environment: Development,
		Backend: BackendConfig{
			BasePath:     "/v1",
			PollInterval: "5s",
			Timeout:      "30s",
		},
		Bridge: BridgeConfig{
			SocketPath: "/run/livetrack/bridge.sock",
			Platform:   "ios",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the LIVETRACK_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or automatic discovery - if LIVETRACK_CONFIG
// is not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("LIVETRACK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LIVETRACK_CONFIG environment variable not set; " +
			"set it to the path of your livetrack.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are parsed as JSON with comments; everything else
// is parsed as YAML.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// Strip comments and trailing commas; the result is plain
		// JSON, which the YAML parser accepts.
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Backend != nil {
		if overrides.Backend.BaseURL != "" {
			c.Backend.BaseURL = overrides.Backend.BaseURL
		}
		if overrides.Backend.BasePath != "" {
			c.Backend.BasePath = overrides.Backend.BasePath
		}
		if overrides.Backend.APIKey != "" {
			c.Backend.APIKey = overrides.Backend.APIKey
		}
		if overrides.Backend.PollInterval != "" {
			c.Backend.PollInterval = overrides.Backend.PollInterval
		}
		if overrides.Backend.Timeout != "" {
			c.Backend.Timeout = overrides.Backend.Timeout
		}
		if len(overrides.Backend.InitialJobIDs) > 0 {
			c.Backend.InitialJobIDs = overrides.Backend.InitialJobIDs
		}
	}

	if overrides.Bridge != nil {
		if overrides.Bridge.SocketPath != "" {
			c.Bridge.SocketPath = overrides.Bridge.SocketPath
		}
		if overrides.Bridge.Platform != "" {
			c.Bridge.Platform = overrides.Bridge.Platform
		}
	}

	if overrides.Notifications != nil {
		if overrides.Notifications.DismissAfter != "" {
			c.Notifications.DismissAfter = overrides.Notifications.DismissAfter
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Bridge.SocketPath = expandVars(c.Bridge.SocketPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, fmt.Errorf("backend.base_url is required"))
	}

	if _, err := time.ParseDuration(c.Backend.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("backend.poll_interval: %w", err))
	}
	if _, err := time.ParseDuration(c.Backend.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("backend.timeout: %w", err))
	}
	if c.Notifications.DismissAfter != "" {
		if _, err := time.ParseDuration(c.Notifications.DismissAfter); err != nil {
			errs = append(errs, fmt.Errorf("notifications.dismiss_after: %w", err))
		}
	}

	switch c.Bridge.Platform {
	case "ios", "android":
	default:
		errs = append(errs, fmt.Errorf("bridge.platform must be ios or android, got %q", c.Bridge.Platform))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PollInterval returns the parsed poll interval. Call Validate first;
// an unparseable value falls back to the default.
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Backend.PollInterval, 5*time.Second)
}

// Timeout returns the parsed per-fetch timeout.
func (c *Config) Timeout() time.Duration {
	return parseDurationOr(c.Backend.Timeout, 30*time.Second)
}

// DismissAfter returns the parsed dismiss window, or zero when unset
// (meaning the platform default applies).
func (c *Config) DismissAfter() time.Duration {
	if c.Notifications.DismissAfter == "" {
		return 0
	}
	return parseDurationOr(c.Notifications.DismissAfter, 0)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
