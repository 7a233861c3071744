// Package config loads the importd service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LookasideMode selects how source artifacts are published.
type LookasideMode string

const (
	// LookasideLocal copies artifacts into a local lookaside tree.
	LookasideLocal LookasideMode = "local"
	// LookasideUpload sends artifacts to a remote upload endpoint.
	LookasideUpload LookasideMode = "upload"
)

// Config is the complete importd configuration.
type Config struct {
	Git       GitConfig       `yaml:"git"`
	Commands  CommandsConfig  `yaml:"commands"`
	Lookaside LookasideConfig `yaml:"lookaside"`
	Lock      LockConfig      `yaml:"lock"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// GitConfig configures clone URLs and the committer identity.
type GitConfig struct {
	// BaseURL is the URL prefix repositories are cloned from.
	BaseURL string `yaml:"base_url"`

	UserName  string `yaml:"user_name"`
	UserEmail string `yaml:"user_email"`
}

// CommandsConfig points at the site's provisioning and refresh commands.
type CommandsConfig struct {
	SetupRepo string `yaml:"setup_repo"`
	MkBranch  string `yaml:"mkbranch"`

	// PkgList and PkgListLocation drive the best-effort listing refresh;
	// an empty PkgList disables it.
	PkgList         string `yaml:"pkg_list"`
	PkgListLocation string `yaml:"pkg_list_location"`
}

// LookasideConfig configures artifact publishing.
type LookasideConfig struct {
	Mode LookasideMode `yaml:"mode"`

	// Root is the local lookaside tree (mode: local).
	Root string `yaml:"root"`

	// Group, when set, owns new lookaside entries (mode: local).
	Group string `yaml:"group"`

	// UploadURL is the remote endpoint (mode: upload).
	UploadURL string `yaml:"upload_url"`
}

// LockConfig configures import serialization.
type LockConfig struct {
	// Path, when set, switches from the in-process lock to a host-wide
	// file lock at this path.
	Path string `yaml:"path"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the lock acquisition timeout.
func (l LockConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// DaemonConfig configures the spool-directory daemon.
type DaemonConfig struct {
	// SpoolDir is watched for *.yaml import job files.
	SpoolDir string `yaml:"spool_dir"`

	// HistoryDB is the import-history SQLite database path.
	HistoryDB string `yaml:"history_db"`

	// LogFile, when set, receives rotated daemon logs instead of stderr.
	LogFile string `yaml:"log_file"`

	// ImportTimeoutSeconds is the watchdog around one import job.
	ImportTimeoutSeconds int `yaml:"import_timeout_seconds"`

	// DebounceMillis batches rapid spool-file events together.
	DebounceMillis int `yaml:"debounce_millis"`
}

// ImportTimeout returns the per-job watchdog timeout.
func (d DaemonConfig) ImportTimeout() time.Duration {
	return time.Duration(d.ImportTimeoutSeconds) * time.Second
}

// Debounce returns the spool event debounce interval.
func (d DaemonConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMillis) * time.Millisecond
}

// Default returns a configuration with defaults applied; loading a file
// overrides them field by field.
func Default() *Config {
	return &Config{
		Git: GitConfig{
			UserName:  "Import Daemon",
			UserEmail: "importd@localhost",
		},
		Lookaside: LookasideConfig{
			Mode: LookasideLocal,
		},
		Lock: LockConfig{
			TimeoutSeconds: 120,
		},
		Daemon: DaemonConfig{
			ImportTimeoutSeconds: 1800,
			DebounceMillis:       500,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every mode of operation needs.
func (c *Config) Validate() error {
	if c.Git.BaseURL == "" {
		return fmt.Errorf("config: git.base_url is required")
	}
	if c.Commands.SetupRepo == "" {
		return fmt.Errorf("config: commands.setup_repo is required")
	}
	if c.Commands.MkBranch == "" {
		return fmt.Errorf("config: commands.mkbranch is required")
	}
	switch c.Lookaside.Mode {
	case LookasideLocal:
		if c.Lookaside.Root == "" {
			return fmt.Errorf("config: lookaside.root is required in local mode")
		}
	case LookasideUpload:
		if c.Lookaside.UploadURL == "" {
			return fmt.Errorf("config: lookaside.upload_url is required in upload mode")
		}
	default:
		return fmt.Errorf("config: unknown lookaside.mode %q", c.Lookaside.Mode)
	}
	if c.Lock.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: lock.timeout_seconds must be positive")
	}
	return nil
}
