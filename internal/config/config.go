// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the coordination
// daemon.
//
// Configuration is loaded from a single file specified by:
//   - PORTD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for the daemon.
type Config struct {
	Environment Environment `yaml:"environment"`

	Listen      ListenConfig      `yaml:"listen"`
	Ports       PortsConfig       `yaml:"ports"`
	Agents      AgentsConfig      `yaml:"agents"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Salvage     SalvageConfig     `yaml:"salvage"`
	Activity    ActivityConfig    `yaml:"activity"`
	Reaper      ReaperConfig      `yaml:"reaper"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Listen    *ListenConfig    `yaml:"listen,omitempty"`
	Agents    *AgentsConfig    `yaml:"agents,omitempty"`
	Reaper    *ReaperConfig    `yaml:"reaper,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// ListenConfig configures the HTTP bind address and data file.
type ListenConfig struct {
	// Address is the TCP listen address. Default "127.0.0.1:9876".
	Address string `yaml:"address"`

	// DataFile is the path to the SQLite database file.
	DataFile string `yaml:"data_file"`
}

// PortsConfig configures the claimable port range and reserved ports.
type PortsConfig struct {
	// RangeMin/RangeMax bound the claimable port range, inclusive.
	RangeMin int `yaml:"range_min"`
	RangeMax int `yaml:"range_max"`

	// Reserved lists ports that are never handed out even if free.
	Reserved []int `yaml:"reserved"`

	// ClaimRetries bounds the number of fresh-port-search retries on
	// unique-key collision before a claim fails as Transient.
	ClaimRetries int `yaml:"claim_retries"`

	// ListeningScanCacheTTL bounds how long an OS-level LISTENing
	// port scan is cached, e.g. "2s".
	ListeningScanCacheTTL string `yaml:"listening_scan_cache_ttl"`
}

// AgentsConfig configures the default agent id and liveness
// thresholds.
type AgentsConfig struct {
	// DefaultAgentID is loaded, defaulted and overridable like the other
	// settings, but no component reads it: an operation whose caller
	// omits createdBy/agentId records no agent id.
	DefaultAgentID string `yaml:"default_agent_id"`

	// StaleAfter/DeadAfter are durations like "10m"/"20m".
	StaleAfter string `yaml:"stale_after"`
	DeadAfter  string `yaml:"dead_after"`
}

// MessagingConfig configures channel history retention and
// subscription capacity.
type MessagingConfig struct {
	MaxMessagesPerChannel int    `yaml:"max_messages_per_channel"`
	MaxMessageAge         string `yaml:"max_message_age"`

	MaxSubscribersPerSource int `yaml:"max_subscribers_per_source"`
	MaxSubscriberQueue      int `yaml:"max_subscriber_queue"`
}

// SalvageConfig configures the resurrection snapshot bound.
type SalvageConfig struct {
	NotesPerSessionSnapshot int `yaml:"notes_per_session_snapshot"`
}

// ActivityConfig configures activity-log retention.
type ActivityConfig struct {
	MaxAge  string `yaml:"max_age"`
	MaxRows int    `yaml:"max_rows"`
}

// ReaperConfig configures the periodic sweep schedule. If Cron is
// non-empty it takes precedence over Interval.
type ReaperConfig struct {
	Interval string `yaml:"interval"`
	Cron     string `yaml:"cron"`
}

// RateLimitConfig configures the per-source HTTP token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
	MaxSSEStreams     int `yaml:"max_sse_streams"`
	MaxBodyBytes      int `yaml:"max_body_bytes"`
}

// CollaboratorConfig configures the optional internal Unix-socket
// surface for non-HTTP collaborators.
type CollaboratorConfig struct {
	SocketPath string `yaml:"socket_path"`
	Enabled    bool   `yaml:"enabled"`
}

// Default returns the default configuration. These defaults exist
// primarily to ensure all fields have sensible zero values, not as a
// fallback — the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Address:  "127.0.0.1:9876",
			DataFile: filepath.Join("${HOME}", ".local", "share", "portd", "portd.db"),
		},
		Ports: PortsConfig{
			RangeMin:              20000,
			RangeMax:              29999,
			ClaimRetries:          5,
			ListeningScanCacheTTL: "2s",
		},
		Agents: AgentsConfig{
			DefaultAgentID: "default",
			StaleAfter:     "10m",
			DeadAfter:      "20m",
		},
		Messaging: MessagingConfig{
			MaxMessagesPerChannel:   1000,
			MaxMessageAge:           "168h",
			MaxSubscribersPerSource: 10,
			MaxSubscriberQueue:      64,
		},
		Salvage: SalvageConfig{
			NotesPerSessionSnapshot: 20,
		},
		Activity: ActivityConfig{
			MaxAge:  "720h",
			MaxRows: 100000,
		},
		Reaper: ReaperConfig{
			Interval: "5m",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			Burst:             20,
			MaxSSEStreams:     10,
			MaxBodyBytes:      10 * 1024,
		},
		Collaborator: CollaboratorConfig{
			SocketPath: filepath.Join("${HOME}", ".local", "share", "portd", "collab.sock"),
			Enabled:    false,
		},
	}
}

// Load loads configuration from the PORTD_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults — if PORTD_CONFIG is not
// set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PORTD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PORTD_CONFIG environment variable not set; " +
			"set it to the path of your portd.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				RateLimit: &RateLimitConfig{
					RequestsPerMinute: 60,
					Burst:             10,
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		if overrides.Listen.Address != "" {
			c.Listen.Address = overrides.Listen.Address
		}
		if overrides.Listen.DataFile != "" {
			c.Listen.DataFile = overrides.Listen.DataFile
		}
	}
	if overrides.Agents != nil {
		if overrides.Agents.DefaultAgentID != "" {
			c.Agents.DefaultAgentID = overrides.Agents.DefaultAgentID
		}
		if overrides.Agents.StaleAfter != "" {
			c.Agents.StaleAfter = overrides.Agents.StaleAfter
		}
		if overrides.Agents.DeadAfter != "" {
			c.Agents.DeadAfter = overrides.Agents.DeadAfter
		}
	}
	if overrides.Reaper != nil {
		if overrides.Reaper.Interval != "" {
			c.Reaper.Interval = overrides.Reaper.Interval
		}
		if overrides.Reaper.Cron != "" {
			c.Reaper.Cron = overrides.Reaper.Cron
		}
	}
	if overrides.RateLimit != nil {
		if overrides.RateLimit.RequestsPerMinute != 0 {
			c.RateLimit.RequestsPerMinute = overrides.RateLimit.RequestsPerMinute
		}
		if overrides.RateLimit.Burst != 0 {
			c.RateLimit.Burst = overrides.RateLimit.Burst
		}
		if overrides.RateLimit.MaxSSEStreams != 0 {
			c.RateLimit.MaxSSEStreams = overrides.RateLimit.MaxSSEStreams
		}
		if overrides.RateLimit.MaxBodyBytes != 0 {
			c.RateLimit.MaxBodyBytes = overrides.RateLimit.MaxBodyBytes
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	home, _ := os.UserHomeDir()
	vars := map[string]string{
		"HOME": home,
	}
	if vars["HOME"] == "" {
		vars["HOME"] = os.Getenv("HOME")
	}

	c.Listen.DataFile = expandVars(c.Listen.DataFile, vars)
	c.Collaborator.SocketPath = expandVars(c.Collaborator.SocketPath, vars)
}

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
	if c.Listen.Address == "" {
		errs = append(errs, fmt.Errorf("listen.address is required"))
	}
	if c.Listen.DataFile == "" {
		errs = append(errs, fmt.Errorf("listen.data_file is required"))
	}
	if c.Ports.RangeMin <= 0 || c.Ports.RangeMax <= 0 || c.Ports.RangeMin > c.Ports.RangeMax {
		errs = append(errs, fmt.Errorf("ports.range_min/range_max must form a non-empty range"))
	}
	if _, err := c.StaleAfter(); err != nil {
		errs = append(errs, fmt.Errorf("agents.stale_after: %w", err))
	}
	if _, err := c.DeadAfter(); err != nil {
		errs = append(errs, fmt.Errorf("agents.dead_after: %w", err))
	}
	if c.Reaper.Interval != "" {
		if _, err := time.ParseDuration(c.Reaper.Interval); err != nil {
			errs = append(errs, fmt.Errorf("reaper.interval: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StaleAfter parses Agents.StaleAfter as a duration.
func (c *Config) StaleAfter() (time.Duration, error) {
	return time.ParseDuration(c.Agents.StaleAfter)
}

// DeadAfter parses Agents.DeadAfter as a duration.
func (c *Config) DeadAfter() (time.Duration, error) {
	return time.ParseDuration(c.Agents.DeadAfter)
}

// EnsurePaths creates the directory that holds the data file and,
// when enabled, the collaborator socket.
func (c *Config) EnsurePaths() error {
	dirs := []string{filepath.Dir(c.Listen.DataFile)}
	if c.Collaborator.Enabled {
		dirs = append(dirs, filepath.Dir(c.Collaborator.SocketPath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
