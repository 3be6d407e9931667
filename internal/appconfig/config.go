package appconfig

import (
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"pkt.systems/jobterm/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	HistoryFile   string        `mapstructure:"history_file" yaml:"history_file"`
	Shell         string        `mapstructure:"shell" yaml:"shell"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig holds engine limits and timings.
type EngineConfig struct {
	MaxLines             int  `mapstructure:"max_lines" yaml:"max_lines"`
	MaxHistory           int  `mapstructure:"max_history" yaml:"max_history"`
	MaxJobs              int  `mapstructure:"max_jobs" yaml:"max_jobs"`
	MaxSessions          int  `mapstructure:"max_sessions" yaml:"max_sessions"`
	MaxStages            int  `mapstructure:"max_stages" yaml:"max_stages"`
	HistoryListLimit     int  `mapstructure:"history_list_limit" yaml:"history_list_limit"`
	PollIntervalMS       int  `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	WatchIntervalSeconds int  `mapstructure:"watch_interval_seconds" yaml:"watch_interval_seconds"`
	NoGlob               bool `mapstructure:"no_glob" yaml:"no_glob"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	TOTPSecret         string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// LoggingConfig controls where logs go in interactive mode.
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		HistoryFile:   filepath.Join(home, schema.DefaultHistoryFileName),
		Shell:         schema.DefaultShell,
		Engine: EngineConfig{
			MaxLines:             schema.DefaultMaxLines,
			MaxHistory:           schema.DefaultMaxHistory,
			MaxJobs:              schema.DefaultMaxJobs,
			MaxSessions:          schema.DefaultMaxSessions,
			MaxStages:            schema.DefaultMaxStages,
			HistoryListLimit:     schema.DefaultHistoryListLimit,
			PollIntervalMS:       int(schema.DefaultPollInterval / time.Millisecond),
			WatchIntervalSeconds: int(schema.DefaultWatchInterval / time.Second),
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".jobterm", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
			TOTPSecret:         "",
		},
		Logging: LoggingConfig{
			File:  "",
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".jobterm", "config.yaml"), nil
}

// EngineSettings converts the file config into engine limits.
func (c Config) EngineSettings() schema.EngineConfig {
	return schema.EngineConfig{
		MaxLines:         c.Engine.MaxLines,
		MaxHistory:       c.Engine.MaxHistory,
		MaxJobs:          c.Engine.MaxJobs,
		MaxSessions:      c.Engine.MaxSessions,
		MaxStages:        c.Engine.MaxStages,
		HistoryListLimit: c.Engine.HistoryListLimit,
		PollInterval:     time.Duration(c.Engine.PollIntervalMS) * time.Millisecond,
		WatchInterval:    time.Duration(c.Engine.WatchIntervalSeconds) * time.Second,
		HistoryFile:      c.HistoryFile,
		Shell:            c.Shell,
		NoGlob:           c.Engine.NoGlob,
	}
}
