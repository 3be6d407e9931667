package schema

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

// EngineConfig defines limits and defaults for the job engine.
type EngineConfig struct {
	MaxLines         int
	MaxHistory       int
	MaxJobs          int
	MaxSessions      int
	MaxStages        int
	HistoryListLimit int
	PollInterval     time.Duration
	WatchInterval    time.Duration
	// HistoryFile is shared by every session. Empty disables persistence
	// only when DisableHistoryFile is set; otherwise a default is used.
	HistoryFile        string
	DisableHistoryFile bool
	// Shell runs watcher commands as `<Shell> -c <cmd>`.
	Shell string
	// NoGlob passes `* ? [ ]` tokens to commands unexpanded.
	NoGlob bool
}

const (
	// DefaultMaxLines is the per-session scrollback capacity.
	DefaultMaxLines = 20000
	// DefaultMaxHistory is the per-session history capacity.
	DefaultMaxHistory = 10000
	// DefaultMaxJobs is the per-session job table capacity.
	DefaultMaxJobs = 64
	// DefaultMaxSessions is the number of sessions an engine may hold.
	DefaultMaxSessions = 12
	// DefaultMaxStages bounds the number of stages in a pipeline.
	DefaultMaxStages = 16
	// MaxWatchCommands bounds the watcher command list.
	MaxWatchCommands = 8
	// DefaultHistoryListLimit bounds the `history` builtin output.
	DefaultHistoryListLimit = 1000
	// DefaultPollInterval is the scheduler tick.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultWatchInterval is the pause between watcher cycles.
	DefaultWatchInterval = 2 * time.Second
	// DefaultHistoryFileName is resolved against the user's home directory.
	DefaultHistoryFileName = ".jobterm_history"
	// DefaultShell runs watcher commands.
	DefaultShell = "/bin/sh"
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = DefaultMaxJobs
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxStages <= 0 {
		cfg.MaxStages = DefaultMaxStages
	}
	if cfg.HistoryListLimit <= 0 {
		cfg.HistoryListLimit = DefaultHistoryListLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.DisableHistoryFile {
		cfg.HistoryFile = ""
	} else {
		if cfg.HistoryFile == "" {
			home, err := homedir.Dir()
			if err != nil {
				return EngineConfig{}, err
			}
			cfg.HistoryFile = filepath.Join(home, DefaultHistoryFileName)
		}
		expanded, err := homedir.Expand(cfg.HistoryFile)
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.HistoryFile = expanded
	}
	if cfg.HistoryListLimit > cfg.MaxHistory {
		cfg.HistoryListLimit = cfg.MaxHistory
	}
	if cfg.PollInterval >= cfg.WatchInterval {
		return EngineConfig{}, errors.New("poll interval must be shorter than watch interval")
	}
	return cfg, nil
}
