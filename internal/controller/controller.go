// Package controller ties the script store, supervisor, scheduler, venv
// manager, session state, settings, history, and metrics into the single
// coordination surface the API and CLI talk to.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scriptherd/scriptherd/internal/history"
	"github.com/scriptherd/scriptherd/internal/logger"
	"github.com/scriptherd/scriptherd/internal/metrics"
	"github.com/scriptherd/scriptherd/internal/schedule"
	"github.com/scriptherd/scriptherd/internal/script"
	"github.com/scriptherd/scriptherd/internal/session"
	"github.com/scriptherd/scriptherd/internal/settings"
	"github.com/scriptherd/scriptherd/internal/supervisor"
	"github.com/scriptherd/scriptherd/internal/venv"
	"github.com/scriptherd/scriptherd/internal/watcher"
)

// Events receives lifecycle notifications. All methods may be called from
// supervisor or scheduler goroutines; implementations must be quick and
// concurrency-safe. Any method set may be nil-checked via the controller's
// internal dispatch, so a zero Events value is valid.
type Events struct {
	OnOutputLine      func(key, line string)
	OnExit            func(key string, exitCode int)
	OnLog             func(msg string)
	OnScheduleTrigger func(key string)
}

// Config carries daemon paths and tunables.
type Config struct {
	ScriptsDir   string
	SettingsPath string
	SessionPath  string
	HistoryDSN   string
	ScriptLogs   logger.FileConfig
	PollInterval time.Duration // scheduler poll period, default 30s
}

// Controller is the application core. One instance per daemon.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	events Events

	store    *script.Store
	sup      *supervisor.Supervisor
	sched    *schedule.Scheduler
	venvs    *venv.Manager
	sessions *session.Store
	settings *settings.Manager
	hist     *history.Store
	watch    *watcher.Watcher
	sampler  *metrics.Sampler
}

// run is the per-launch bookkeeping shared between start and the exit
// callback. A fast-exiting child can run onExit before the history row is
// committed; the mutex and the exited/hasID flags let whichever side finishes
// second record the exit.
type run struct {
	trigger   history.Trigger
	startedAt time.Time

	mu       sync.Mutex
	id       int64
	hasID    bool
	exited   bool
	exitCode int
	exitAt   time.Time
}

// ScriptView is one row of the script listing.
type ScriptView struct {
	Key             string   `json:"key"`
	Row             int      `json:"row"`
	Name            string   `json:"name"`
	MainScript      string   `json:"main_script"`
	Schedule        string   `json:"schedule"`
	ScheduleDisplay string   `json:"schedule_display,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	HasRequirements bool     `json:"has_requirements"`
	HasVenv         bool     `json:"has_venv"`
	Running         bool     `json:"running"`
}

// RunningView is one running script plus its latest resource sample.
type RunningView struct {
	supervisor.Status
	Resources *metrics.Usage `json:"resources,omitempty"`
}

// New wires the controller. The history store may be nil-backed by passing
// an empty DSN; everything else is mandatory.
func New(cfg Config, ev Events, log *slog.Logger) (*Controller, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := script.NewStore(cfg.ScriptsDir)
	if err != nil {
		return nil, err
	}

	settingsMgr := settings.NewManager(cfg.SettingsPath)
	cur := settingsMgr.Load()

	c := &Controller{
		cfg:      cfg,
		logger:   log,
		events:   ev,
		store:    store,
		venvs:    venv.New(cur.PythonPath, log),
		sessions: session.NewStore(cfg.SessionPath),
		settings: settingsMgr,
	}
	c.sup = supervisor.New(cur.PythonPath, log)
	c.sched = schedule.NewScheduler(c.onScheduleTrigger, c.sup.IsRunning, log)
	if cfg.PollInterval > 0 {
		c.sched.SetPollInterval(cfg.PollInterval)
	}
	c.watch = watcher.New(cfg.ScriptsDir, c.onScriptsChanged, log)
	c.sampler = metrics.NewSampler(c.runningPIDs, log)

	if cfg.HistoryDSN != "" {
		h, err := history.Open(cfg.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		c.hist = h
	}
	return c, nil
}

// Run starts the background machinery and restores the previous session's
// running scripts. It does not block.
func (c *Controller) Run() error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	c.sched.LoadAll(c.store.ScheduleMap())
	c.sched.Start()
	c.sampler.Start()
	if err := c.watch.Start(); err != nil {
		c.logger.Warn("script directory watch unavailable", "error", err)
	}
	c.restoreSession()
	return nil
}

// Shutdown saves the running set for next start, stops all children, and
// tears the background loops down.
func (c *Controller) Shutdown() {
	if keys := c.sup.RunningKeys(); len(keys) > 0 {
		if err := c.sessions.Save(keys); err != nil {
			c.logger.Warn("save session state", "error", err)
		}
	} else {
		c.sessions.Clear()
	}
	c.sched.Stop()
	c.watch.Stop()
	c.sup.ShutdownAll()
	c.sampler.Stop()
	if c.hist != nil {
		_ = c.hist.Close()
	}
}

// List returns every discovered script with live running state.
func (c *Controller) List() []ScriptView {
	infos := c.store.DiscoverAll()
	out := make([]ScriptView, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScriptView{
			Key:             info.Key,
			Row:             info.Row,
			Name:            info.Meta.ScriptName,
			MainScript:      info.Meta.MainScript,
			Schedule:        info.Meta.Schedule,
			ScheduleDisplay: info.Meta.ScheduleDisplay(),
			Tags:            info.Meta.TagList(),
			HasRequirements: info.HasRequirements,
			HasVenv:         info.HasVenv,
			Running:         c.sup.IsRunning(info.Key),
		})
	}
	return out
}

// Running returns the status of every live script with resource samples.
func (c *Controller) Running() []RunningView {
	sts := c.sup.Statuses()
	out := make([]RunningView, 0, len(sts))
	for _, st := range sts {
		if st.State != supervisor.StateRunning.String() {
			continue
		}
		rv := RunningView{Status: st}
		if u, ok := c.sampler.Latest(st.Key); ok {
			rv.Resources = &u
		}
		out = append(out, rv)
	}
	return out
}

// Status reports the last known state for one script key.
func (c *Controller) Status(key string) (supervisor.Status, bool) {
	return c.sup.Status(key)
}

// StartScript launches the script identified by key on behalf of a manual
// request. Already-running keys are a no-op.
func (c *Controller) StartScript(key string) error {
	return c.start(key, history.TriggerManual)
}

func (c *Controller) start(key string, trigger history.Trigger) error {
	info, ok := c.store.Find(key)
	if !ok {
		return fmt.Errorf("unknown script %q", key)
	}
	if info.Meta.MainScript == "" {
		return fmt.Errorf("script %q has no main script", key)
	}
	if c.sup.IsRunning(key) {
		return nil
	}

	logW := c.cfg.ScriptLogs.ScriptWriter(key)
	r := &run{trigger: trigger, startedAt: time.Now()}

	scriptPath := filepath.Join(info.Folder, info.Meta.MainScript)
	started, err := c.sup.Start(key, scriptPath, info.Meta.ScriptName, info.Folder,
		func(k, line string) { c.onOutput(k, line, logW) },
		func(k string, code int) { c.onExit(k, code, r, logW) },
	)
	if err != nil {
		if logW != nil {
			_ = logW.Close()
		}
		metrics.IncFailure(key)
		return err
	}
	if !started {
		// Lost a race with another start for the same key; the winning
		// instance owns the bookkeeping.
		if logW != nil {
			_ = logW.Close()
		}
		return nil
	}

	metrics.IncStart(key)
	metrics.SetRunning(len(c.sup.RunningKeys()))
	c.recordStart(key, r)
	c.emitLog(fmt.Sprintf("Started %s", key))
	return nil
}

// emitLog forwards a human-readable status line to the embedding UI, if one
// subscribed.
func (c *Controller) emitLog(msg string) {
	if c.events.OnLog != nil {
		c.events.OnLog(msg)
	}
}

// StopScript requests a graceful stop, escalating to a kill if the script
// ignores it. No-op for keys that are not running.
func (c *Controller) StopScript(key string) {
	if !c.sup.IsRunning(key) {
		return
	}
	c.sup.Stop(key)
	metrics.IncStop(key)
	c.emitLog(fmt.Sprintf("Stopped %s", key))
}

// UpdateSchedule validates, persists, and applies a new raw schedule for key.
func (c *Controller) UpdateSchedule(key, raw string) error {
	info, ok := c.store.Find(key)
	if !ok {
		return fmt.Errorf("unknown script %q", key)
	}
	meta := info.Meta
	meta.Schedule = raw
	if err := script.SaveMeta(info.Folder, meta); err != nil {
		return err
	}
	c.sched.UpdateSchedule(key, raw)
	return nil
}

// Schedules reports the parsed schedule entries currently active.
func (c *Controller) Schedules() map[string]schedule.Entry {
	return c.sched.Entries()
}

// ImportScript copies a folder into the managed scripts directory.
func (c *Controller) ImportScript(source, name string, onProgress script.ProgressFunc) (script.Info, error) {
	return c.store.Import(source, name, onProgress)
}

// DeleteScript stops a running instance, drops its schedule, and removes
// the folder.
func (c *Controller) DeleteScript(key string) error {
	c.StopScript(key)
	c.sched.RemoveSchedule(key)
	return c.store.Delete(key)
}

// InstallVenv builds or rebuilds a script's virtualenv in the background.
// The returned channel closes when the install finishes.
func (c *Controller) InstallVenv(key string, onOutput venv.OutputFunc, onComplete venv.CompleteFunc) (<-chan struct{}, error) {
	info, ok := c.store.Find(key)
	if !ok {
		return nil, fmt.Errorf("unknown script %q", key)
	}
	return c.venvs.Install(info.Folder, onOutput, onComplete), nil
}

// Settings returns the persisted daemon settings.
func (c *Controller) Settings() settings.Settings {
	return c.settings.Load()
}

// UpdateSettings persists new settings and applies the interpreter change to
// future launches and installs.
func (c *Controller) UpdateSettings(s settings.Settings) error {
	if err := c.settings.Save(s); err != nil {
		return err
	}
	c.sup.UpdateInterpreter(s.PythonPath)
	c.venvs.UpdatePython(s.PythonPath)
	return nil
}

// History returns recent run records, empty when no history store is wired.
func (c *Controller) History(ctx context.Context, key string, limit int) ([]history.Run, error) {
	if c.hist == nil {
		return nil, nil
	}
	return c.hist.Recent(ctx, key, limit)
}

// onScheduleTrigger fires from the scheduler loop. The supervisor's Start
// guard makes a race with a manual start harmless.
func (c *Controller) onScheduleTrigger(key string) {
	c.logger.Info("schedule trigger", "script", key)
	metrics.IncScheduleTrigger(key)
	if c.events.OnScheduleTrigger != nil {
		c.events.OnScheduleTrigger(key)
	}
	if err := c.start(key, history.TriggerSchedule); err != nil {
		c.logger.Error("scheduled start failed", "script", key, "error", err)
	}
}

// onScriptsChanged reloads schedules after the scripts directory settles.
func (c *Controller) onScriptsChanged() {
	c.logger.Debug("scripts directory changed, reloading schedules")
	c.sched.LoadAll(c.store.ScheduleMap())
}

func (c *Controller) onOutput(key, line string, logW io.Writer) {
	if logW != nil {
		_, _ = io.WriteString(logW, line+"\n")
	}
	if c.events.OnOutputLine != nil {
		c.events.OnOutputLine(key, line)
	}
}

func (c *Controller) onExit(key string, code int, r *run, logW io.Closer) {
	if logW != nil {
		_ = logW.Close()
	}
	if code != 0 {
		metrics.IncFailure(key)
	}
	metrics.SetRunning(len(c.sup.RunningKeys()))
	metrics.ObserveRunDuration(key, time.Since(r.startedAt).Seconds())

	r.mu.Lock()
	r.exited = true
	r.exitCode = code
	r.exitAt = time.Now()
	id, hasID, exitAt := r.id, r.hasID, r.exitAt
	r.mu.Unlock()
	if hasID {
		c.recordExit(key, id, code, exitAt)
	}

	if c.events.OnExit != nil {
		c.events.OnExit(key, code)
	}
	c.emitLog(fmt.Sprintf("%s exited with code %d", key, code))
}

func (c *Controller) recordStart(key string, r *run) {
	if c.hist == nil {
		return
	}
	pid := 0
	if st, ok := c.sup.Status(key); ok {
		pid = st.PID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := c.hist.RecordStart(ctx, key, r.trigger, pid, r.startedAt)
	if err != nil {
		c.logger.Warn("record run start", "script", key, "error", err)
		return
	}
	r.mu.Lock()
	r.id = id
	r.hasID = true
	exited, code, exitAt := r.exited, r.exitCode, r.exitAt
	r.mu.Unlock()
	// The child may have exited before the start row committed; close the
	// row now instead of leaving it open.
	if exited {
		c.recordExit(key, id, code, exitAt)
	}
}

func (c *Controller) recordExit(key string, id int64, code int, at time.Time) {
	if c.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.hist.RecordExit(ctx, id, code, at); err != nil {
		c.logger.Warn("record run exit", "script", key, "error", err)
	}
}

// restoreSession relaunches the scripts that were running when the daemon
// last shut down, then clears the state file so a crash loop cannot replay
// a stale set.
func (c *Controller) restoreSession() {
	keys := c.sessions.Load()
	for _, key := range keys {
		if err := c.start(key, history.TriggerRestore); err != nil {
			c.logger.Warn("restore previous session script", "script", key, "error", err)
		}
	}
	c.sessions.Clear()
}

// runningPIDs feeds the resource sampler.
func (c *Controller) runningPIDs() map[string]int32 {
	out := make(map[string]int32)
	for _, st := range c.sup.Statuses() {
		if st.State == supervisor.StateRunning.String() && st.PID > 0 {
			out[st.Key] = int32(st.PID)
		}
	}
	return out
}
