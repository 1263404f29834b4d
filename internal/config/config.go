// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon configuration: defaults, then the YAML
// file, then environment overrides — later sources win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/blueprint/pkg/errors"
)

// Config is the complete daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the transport listener.
type ServerConfig struct {
	// PortRange is the inclusive localhost port range to try.
	// Environment: BLUEPRINT_PORT_RANGE (e.g. "9370-9399")
	PortRange [2]int `yaml:"port_range,flow"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// AuthToken, when set, is required on every connection.
	// Environment: BLUEPRINT_AUTH_TOKEN
	AuthToken string `yaml:"auth_token,omitempty"`
}

// SessionConfig configures session lifecycle timing.
type SessionConfig struct {
	// IdleTimeout is how long a session may be idle before expiry.
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty"`

	// SweepInterval is how often the idle-session reaper runs.
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`

	// RecoveryWindow is how long persisted snapshots remain restorable.
	RecoveryWindow time.Duration `yaml:"recovery_window,omitempty"`
}

// DispatchConfig configures per-call dispatcher behavior.
type DispatchConfig struct {
	// CallTimeout bounds one tool handler execution. Zero disables the
	// deadline.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`

	// RateLimit is the sustained per-session request rate per second.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// RateBurst is the per-session burst allowance.
	RateBurst int `yaml:"rate_burst,omitempty"`
}

// StorageConfig configures where state lives on disk.
type StorageConfig struct {
	// DatabasePath is the session snapshot database location.
	// Environment: BLUEPRINT_DB_PATH
	DatabasePath string `yaml:"database_path,omitempty"`

	// ProjectsDir is the root directory for project documents.
	// Environment: BLUEPRINT_PROJECTS_DIR
	ProjectsDir string `yaml:"projects_dir,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level,omitempty"`

	// Format is json or text.
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration defaults. Paths are rooted under
// ~/.blueprint.
func Default() *Config {
	root := dataDir()
	return &Config{
		Server: ServerConfig{
			PortRange:       [2]int{9370, 9399},
			ShutdownTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:    30 * time.Minute,
			SweepInterval:  5 * time.Minute,
			RecoveryWindow: 24 * time.Hour,
		},
		Dispatch: DispatchConfig{
			RateBurst: 10,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(root, "sessions.db"),
			ProjectsDir:  filepath.Join(root, "projects"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".blueprint")
}

// Load reads the configuration from path. A missing file is not an error;
// a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, &errors.ConfigError{Key: "file", Reason: "unreadable", Cause: err}
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &errors.ConfigError{Key: "file", Reason: "invalid yaml", Cause: err}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if token := os.Getenv("BLUEPRINT_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}
	if path := os.Getenv("BLUEPRINT_DB_PATH"); path != "" {
		c.Storage.DatabasePath = path
	}
	if dir := os.Getenv("BLUEPRINT_PROJECTS_DIR"); dir != "" {
		c.Storage.ProjectsDir = dir
	}
	if rng := os.Getenv("BLUEPRINT_PORT_RANGE"); rng != "" {
		parts := strings.SplitN(rng, "-", 2)
		if len(parts) != 2 {
			return &errors.ConfigError{Key: "BLUEPRINT_PORT_RANGE", Reason: "expected low-high"}
		}
		low, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return &errors.ConfigError{Key: "BLUEPRINT_PORT_RANGE", Reason: "invalid low port", Cause: err}
		}
		high, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return &errors.ConfigError{Key: "BLUEPRINT_PORT_RANGE", Reason: "invalid high port", Cause: err}
		}
		c.Server.PortRange = [2]int{low, high}
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	low, high := c.Server.PortRange[0], c.Server.PortRange[1]
	if low < 1 || high > 65535 || low > high {
		return &errors.ConfigError{
			Key:    "server.port_range",
			Reason: fmt.Sprintf("invalid range %d-%d", low, high),
		}
	}
	if c.Session.IdleTimeout < 0 {
		return &errors.ConfigError{Key: "session.idle_timeout", Reason: "must not be negative"}
	}
	if c.Session.SweepInterval <= 0 {
		return &errors.ConfigError{Key: "session.sweep_interval", Reason: "must be positive"}
	}
	if c.Session.RecoveryWindow <= 0 {
		return &errors.ConfigError{Key: "session.recovery_window", Reason: "must be positive"}
	}
	if c.Dispatch.RateLimit < 0 {
		return &errors.ConfigError{Key: "dispatch.rate_limit", Reason: "must not be negative"}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &errors.ConfigError{Key: "log.level", Reason: "must be debug, info, warn, or error"}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return &errors.ConfigError{Key: "log.format", Reason: "must be json or text"}
	}
	return nil
}
