package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("history_file", cfg.HistoryFile)
	v.SetDefault("shell", cfg.Shell)
	v.SetDefault("engine.max_lines", cfg.Engine.MaxLines)
	v.SetDefault("engine.max_history", cfg.Engine.MaxHistory)
	v.SetDefault("engine.max_jobs", cfg.Engine.MaxJobs)
	v.SetDefault("engine.max_sessions", cfg.Engine.MaxSessions)
	v.SetDefault("engine.max_stages", cfg.Engine.MaxStages)
	v.SetDefault("engine.history_list_limit", cfg.Engine.HistoryListLimit)
	v.SetDefault("engine.poll_interval_ms", cfg.Engine.PollIntervalMS)
	v.SetDefault("engine.watch_interval_seconds", cfg.Engine.WatchIntervalSeconds)
	v.SetDefault("engine.no_glob", cfg.Engine.NoGlob)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.totp_secret", cfg.SSH.TOTPSecret)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// isNotFound reports a missing config file. SetConfigFile makes viper
// surface the os error rather than ConfigFileNotFoundError.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return os.IsNotExist(err)
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Shell) == "" {
		return fmt.Errorf("shell must not be empty")
	}
	if cfg.Engine.PollIntervalMS <= 0 {
		return fmt.Errorf("engine.poll_interval_ms must be positive")
	}
	if cfg.Engine.WatchIntervalSeconds <= 0 {
		return fmt.Errorf("engine.watch_interval_seconds must be positive")
	}
	if cfg.Engine.MaxSessions <= 0 {
		return fmt.Errorf("engine.max_sessions must be positive")
	}
	switch cfg.Logging.Level {
	case "", "trace", "debug", "info", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", cfg.Logging.Level)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.HistoryFile = expandPath(cfg.HistoryFile)
	cfg.Shell = expandEnv(cfg.Shell)
	cfg.SSH.HostKeyPath = expandPath(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandPath(cfg.SSH.AuthorizedKeysPath)
	cfg.SSH.TOTPSecret = expandEnv(cfg.SSH.TOTPSecret)
	cfg.Logging.File = expandPath(cfg.Logging.File)
}

func expandPath(value string) string {
	value = expandEnv(value)
	if expanded, err := homedir.Expand(value); err == nil {
		return expanded
	}
	return value
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
