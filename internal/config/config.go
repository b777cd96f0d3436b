// Package config loads the daemon's TOML configuration. Every field has a
// working default rooted under a single data directory, so a config file is
// optional.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/scriptherd/scriptherd/internal/logger"
)

// Config is the top-level TOML structure.
type Config struct {
	Listen       string            `toml:"listen" mapstructure:"listen"`
	BasePath     string            `toml:"base_path" mapstructure:"base_path"`
	DataDir      string            `toml:"data_dir" mapstructure:"data_dir"`
	ScriptsDir   string            `toml:"scripts_dir" mapstructure:"scripts_dir"`
	SettingsPath string            `toml:"settings_path" mapstructure:"settings_path"`
	SessionPath  string            `toml:"session_path" mapstructure:"session_path"`
	HistoryDSN   string            `toml:"history_dsn" mapstructure:"history_dsn"`
	PollInterval time.Duration     `toml:"poll_interval" mapstructure:"poll_interval"`
	Log          logger.Config     `toml:"log" mapstructure:"log"`
	ScriptLogs   logger.FileConfig `toml:"script_logs" mapstructure:"script_logs"`
}

// Default returns the configuration used when no file is given: everything
// under dataDir, listening on localhost.
func Default(dataDir string) Config {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".scriptherd")
	}
	return Config{
		Listen:       "127.0.0.1:8765",
		DataDir:      dataDir,
		ScriptsDir:   filepath.Join(dataDir, "scripts"),
		SettingsPath: filepath.Join(dataDir, "settings.ini"),
		SessionPath:  filepath.Join(dataDir, "state.json"),
		HistoryDSN:   filepath.Join(dataDir, "history.db"),
		PollInterval: 30 * time.Second,
		Log:          logger.Config{Level: "info", Format: "text", Color: true},
		ScriptLogs:   logger.FileConfig{Dir: filepath.Join(dataDir, "logs")},
	}
}

// Load reads a TOML config file and fills unset fields from Default. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(""), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	def := Default(cfg.DataDir)
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = def.ScriptsDir
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = def.SettingsPath
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = def.SessionPath
	}
	if cfg.HistoryDSN == "" {
		cfg.HistoryDSN = def.HistoryDSN
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.ScriptLogs.Dir == "" {
		cfg.ScriptLogs.Dir = def.ScriptLogs.Dir
	}
	return cfg, nil
}
