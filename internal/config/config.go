// Package config loads the server's JSON configuration (spec §6) and
// watches its script sources for hot reload.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the JSON contract of spec §6, `{ key, db_path, source }`,
// plus the ambient fields a deployable server needs: a listen
// address, a log level, the §9 Open-Question-3 fresh_db toggle, the
// session inactivity TTL, and whether to watch source files for
// changes.
type Config struct {
	// Key signs issued session tokens (spec §4.6: "any MAC'd
	// self-describing token").
	Key string `json:"key"`

	// DBPath is the Variable Store's SQLite file (spec §4.3).
	DBPath string `json:"db_path"`

	// Source lists the script files to load, concatenated in order
	// (spec §4.1).
	Source []string `json:"source"`

	// Addr is the HTTP adapter's listen address. Defaults to
	// ":8080" when empty.
	Addr string `json:"addr,omitempty"`

	// LogLevel is one of debug/info/warn/error. Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// FreshDB drops and recreates the store's table at startup when true (spec
	// §4.3, §9 Open Question 3). Defaults to true to match the
	// reference behavior; set false to let registered users survive
	// a restart.
	FreshDB *bool `json:"fresh_db,omitempty"`

	// TTLSeconds overrides the session inactivity TTL (spec §4.6
	// default 300s). 0 or unset selects the default.
	TTLSeconds int `json:"ttl_seconds,omitempty"`

	// Watch re-parses Source and hot-swaps the running StateGraph
	// whenever a script file changes on disk.
	Watch bool `json:"watch,omitempty"`
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Key == "" {
		return fmt.Errorf("config: %q is required", "key")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: %q is required", "db_path")
	}
	if len(c.Source) == 0 {
		return fmt.Errorf("config: %q must list at least one script file", "source")
	}
	return nil
}

// ListenAddr returns Addr, defaulting to ":8080".
func (c *Config) ListenAddr() string {
	if c.Addr == "" {
		return ":8080"
	}
	return c.Addr
}

// Fresh returns FreshDB, defaulting to true (spec §9 Open Question 3).
func (c *Config) Fresh() bool {
	if c.FreshDB == nil {
		return true
	}
	return *c.FreshDB
}

// TTL returns the configured session inactivity TTL, or 0 to select
// internal/session.DefaultTTL.
func (c *Config) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}
