// Package scriptherd is the embeddable facade over the daemon internals: a
// stable public API for hosting the script manager inside another program.
package scriptherd

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/scriptherd/scriptherd/internal/config"
	"github.com/scriptherd/scriptherd/internal/controller"
	"github.com/scriptherd/scriptherd/internal/history"
	"github.com/scriptherd/scriptherd/internal/metrics"
	"github.com/scriptherd/scriptherd/internal/schedule"
	"github.com/scriptherd/scriptherd/internal/script"
	"github.com/scriptherd/scriptherd/internal/server"
	"github.com/scriptherd/scriptherd/internal/settings"
	"github.com/scriptherd/scriptherd/internal/supervisor"
)

// Re-export core types for external consumers. Aliases keep conversions
// zero-cost.

type Config = controller.Config

type Events = controller.Events

type ScriptView = controller.ScriptView

type RunningView = controller.RunningView

type Status = supervisor.Status

type Run = history.Run

type ScheduleEntry = schedule.Entry

type Settings = settings.Settings

type ScriptInfo = script.Info

// Manager is a thin facade over the internal controller.
type Manager struct{ inner *controller.Controller }

// New builds a manager from cfg. Events may be zero.
func New(c Config, ev Events) (*Manager, error) {
	inner, err := controller.New(c, ev, nil)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: inner}, nil
}

// Run starts scheduling, watching, and session restore. It does not block.
func (m *Manager) Run() error { return m.inner.Run() }

// Shutdown stops every running script and tears the background loops down.
func (m *Manager) Shutdown() { m.inner.Shutdown() }

func (m *Manager) List() []ScriptView                  { return m.inner.List() }
func (m *Manager) Running() []RunningView              { return m.inner.Running() }
func (m *Manager) Status(key string) (Status, bool)    { return m.inner.Status(key) }
func (m *Manager) Start(key string) error              { return m.inner.StartScript(key) }
func (m *Manager) Stop(key string)                     { m.inner.StopScript(key) }
func (m *Manager) UpdateSchedule(key, raw string) error { return m.inner.UpdateSchedule(key, raw) }
func (m *Manager) Schedules() map[string]ScheduleEntry { return m.inner.Schedules() }
func (m *Manager) Delete(key string) error             { return m.inner.DeleteScript(key) }
func (m *Manager) Settings() Settings                  { return m.inner.Settings() }
func (m *Manager) UpdateSettings(s Settings) error     { return m.inner.UpdateSettings(s) }

// Import copies a source folder into the managed scripts directory.
func (m *Manager) Import(source, name string, onProgress func(string)) (ScriptInfo, error) {
	return m.inner.ImportScript(source, name, onProgress)
}

// History returns recent run records ("" for all scripts).
func (m *Manager) History(ctx context.Context, key string, limit int) ([]Run, error) {
	return m.inner.History(ctx, key, limit)
}

// ParseSchedule parses a raw schedule string. Malformed input yields the
// disabled entry rather than an error.
func ParseSchedule(raw string) ScheduleEntry { return schedule.Parse(raw) }

// LoadConfig reads a daemon TOML config ("" for defaults).
func LoadConfig(path string) (cfg.Config, error) { return cfg.Load(path) }

// NewHTTPServer starts the daemon HTTP API on addr for the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return server.NewServer(addr, basePath, m.inner)
}

// RegisterMetrics registers the Prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers the collectors with the default registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves Prometheus metrics for the default gatherer.
func MetricsHandler() http.Handler { return metrics.Handler() }
