// Package logger configures the daemon's structured logging and the rotating
// per-script output files.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for per-script output logs.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon's log output.
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
	Color  bool   `mapstructure:"color"`  // colorize text output
	File   string `mapstructure:"file"`   // optional rotating daemon log file
}

// Setup builds the daemon logger from cfg and installs it as slog's default.
// With File set, records go to both stderr and a rotating file.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = io.MultiWriter(os.Stderr, &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
		})
	}

	var h slog.Handler
	switch {
	case strings.EqualFold(cfg.Format, "json"):
		h = slog.NewJSONHandler(w, opts)
	case cfg.Color && cfg.File == "":
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FileConfig describes where per-script output logs live. Each script gets
// Dir/<key>.log with lumberjack rotation.
type FileConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ScriptWriter returns a rotating writer for one script's merged output, or
// nil when no log directory is configured.
func (c FileConfig) ScriptWriter(key string) io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, key+".log"),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
