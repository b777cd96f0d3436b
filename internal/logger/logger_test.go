package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	l := Setup(Config{Level: "info", File: path})
	l.Info("daemon started", "port", 8765)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "daemon started")
	require.Contains(t, string(data), "port=8765")
}

func TestColorTextHandlerAddsLevelPrefix(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil, true)
	l := slog.New(h)
	l.Warn("disk almost full")

	out := buf.String()
	require.True(t, strings.Contains(out, "\033[33mWARN\033[0m"), "missing colored level: %q", out)
	require.Contains(t, out, "disk almost full")
}

func TestColorTextHandlerEmitsRawANSI(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))
	l.Warn("low space", "disk", "/dev/sda1")

	out := buf.String()
	// escape codes must reach the writer unescaped or the terminal shows
	// literal \x1b text instead of color
	require.NotContains(t, out, `\x1b`)
	require.Contains(t, out, "\033[33mWARN\033[0m  low space")
	require.Contains(t, out, "disk=/dev/sda1")
}

func TestColorTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true)
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestScriptWriterDefaults(t *testing.T) {
	require.Nil(t, FileConfig{}.ScriptWriter("demo"))

	dir := t.TempDir()
	w := FileConfig{Dir: dir}.ScriptWriter("demo")
	require.NotNil(t, w)
	l, ok := w.(*lj.Logger)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "demo.log"), l.Filename)
	require.Equal(t, DefaultMaxSizeMB, l.MaxSize)
	require.Equal(t, DefaultMaxBackups, l.MaxBackups)
	require.Equal(t, DefaultMaxAgeDays, l.MaxAge)

	_, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(l.Filename)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestScriptWriterOverrides(t *testing.T) {
	cfg := FileConfig{Dir: t.TempDir(), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	l := cfg.ScriptWriter("x").(*lj.Logger)
	require.Equal(t, 1, l.MaxSize)
	require.Equal(t, 9, l.MaxBackups)
	require.Equal(t, 11, l.MaxAge)
	require.True(t, l.Compress)
}
