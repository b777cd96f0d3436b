package controller

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scriptherd/scriptherd/internal/history"
	"github.com/scriptherd/scriptherd/internal/script"
	"github.com/scriptherd/scriptherd/internal/session"
	"github.com/scriptherd/scriptherd/internal/settings"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

type fixture struct {
	ctrl    *Controller
	cfg     Config
	exits   chan int
	outputs chan string
	logs    chan string
}

// newFixture builds a controller over temp dirs using /bin/sh as the
// "interpreter" so no Python install is needed.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		ScriptsDir:   filepath.Join(root, "scripts"),
		SettingsPath: filepath.Join(root, "settings.ini"),
		SessionPath:  filepath.Join(root, "state.json"),
		HistoryDSN:   ":memory:",
	}
	require.NoError(t, settings.NewManager(cfg.SettingsPath).Save(settings.Settings{PythonPath: "/bin/sh"}))

	f := &fixture{
		cfg:     cfg,
		exits:   make(chan int, 16),
		outputs: make(chan string, 64),
		logs:    make(chan string, 64),
	}
	ev := Events{
		OnOutputLine: func(_, line string) { f.outputs <- line },
		OnExit:       func(_ string, code int) { f.exits <- code },
		OnLog:        func(msg string) { f.logs <- msg },
	}
	ctrl, err := New(cfg, ev, nil)
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

// addScript drops a shell-backed script folder with metadata into the
// managed directory.
func (f *fixture) addScript(t *testing.T, key, name, body, sched string) {
	t.Helper()
	folder := filepath.Join(f.cfg.ScriptsDir, key)
	require.NoError(t, os.MkdirAll(folder, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "main.py"), []byte(body), 0o700))
	require.NoError(t, script.SaveMeta(folder, script.Meta{
		ScriptName: name, MainScript: "main.py", Schedule: sched,
	}))
}

func waitExit(t *testing.T, f *fixture) int {
	t.Helper()
	select {
	case code := <-f.exits:
		return code
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout waiting for exit")
		return 0
	}
}

func TestStartScriptRunsAndRecordsHistory(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "report", "Report", "echo hello\nexit 0\n", "off")

	require.NoError(t, f.ctrl.StartScript("report"))
	require.Equal(t, 0, waitExit(t, f))

	select {
	case line := <-f.outputs:
		require.Equal(t, "hello", line)
	default:
		t.Fatalf("no output line observed")
	}

	require.Eventually(t, func() bool {
		runs, err := f.ctrl.History(context.Background(), "report", 10)
		require.NoError(t, err)
		return len(runs) == 1 && runs[0].StoppedAt.Valid
	}, 5*time.Second, 50*time.Millisecond)

	runs, err := f.ctrl.History(context.Background(), "report", 10)
	require.NoError(t, err)
	require.Equal(t, history.TriggerManual, runs[0].Trigger)
	require.EqualValues(t, 0, runs[0].ExitCode.Int64)
}

func TestStartScriptUnknownKey(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	require.Error(t, f.ctrl.StartScript("ghost"))
}

func TestStartScriptMissingMain(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	folder := filepath.Join(f.cfg.ScriptsDir, "nomain")
	require.NoError(t, os.MkdirAll(folder, 0o750))
	require.NoError(t, script.SaveMeta(folder, script.Meta{ScriptName: "NoMain"}))

	require.Error(t, f.ctrl.StartScript("nomain"))
}

func TestListReflectsRunningState(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "looper", "Looper", "sleep 30\n", "off")
	f.addScript(t, "idle", "Idle", "exit 0\n", "daily|09:00")

	require.NoError(t, f.ctrl.StartScript("looper"))
	defer func() {
		f.ctrl.StopScript("looper")
		waitExit(t, f)
	}()

	views := f.ctrl.List()
	require.Len(t, views, 2)
	require.Equal(t, "idle", views[0].Key)
	require.False(t, views[0].Running)
	require.Equal(t, "Daily 09:00", views[0].ScheduleDisplay)
	require.Equal(t, "looper", views[1].Key)
	require.True(t, views[1].Running)

	running := f.ctrl.Running()
	require.Len(t, running, 1)
	require.Equal(t, "looper", running[0].Key)
}

func TestUpdateSchedulePersistsAndApplies(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "job", "Job", "exit 0\n", "off")

	require.NoError(t, f.ctrl.UpdateSchedule("job", "interval|15m"))

	meta, ok := script.LoadMeta(filepath.Join(f.cfg.ScriptsDir, "job"))
	require.True(t, ok)
	require.Equal(t, "interval|15m", meta.Schedule)

	entries := f.ctrl.Schedules()
	require.Contains(t, entries, "job")
	require.Equal(t, 15*time.Minute, entries["job"].Every)

	require.NoError(t, f.ctrl.UpdateSchedule("job", "off"))
	require.NotContains(t, f.ctrl.Schedules(), "job")
}

func TestDeleteScriptStopsAndRemovesFolder(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "victim", "Victim", "sleep 30\n", "interval|5m")

	require.NoError(t, f.ctrl.StartScript("victim"))
	require.NoError(t, f.ctrl.DeleteScript("victim"))
	waitExit(t, f)

	_, err := os.Stat(filepath.Join(f.cfg.ScriptsDir, "victim"))
	require.True(t, os.IsNotExist(err))
	require.Empty(t, f.ctrl.List())
}

func TestRunRestoresPreviousSession(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "resume", "Resume", "exit 0\n", "off")

	require.NoError(t, session.NewStore(f.cfg.SessionPath).Save([]string{"resume"}))

	require.NoError(t, f.ctrl.Run())
	defer f.ctrl.Shutdown()

	require.Equal(t, 0, waitExit(t, f))
	// the state file must not replay on the next start
	require.Empty(t, session.NewStore(f.cfg.SessionPath).Load())

	require.Eventually(t, func() bool {
		runs, err := f.ctrl.History(context.Background(), "resume", 10)
		require.NoError(t, err)
		return len(runs) == 1 && runs[0].Trigger == history.TriggerRestore
	}, 5*time.Second, 50*time.Millisecond)
}

func TestShutdownSavesRunningSet(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "longrun", "LongRun", "sleep 30\n", "off")

	require.NoError(t, f.ctrl.StartScript("longrun"))
	f.ctrl.Shutdown()

	require.Equal(t, []string{"longrun"}, session.NewStore(f.cfg.SessionPath).Load())
}

func TestConcurrentStartsRecordSingleRun(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "racy", "Racy", "sleep 1\n", "off")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.ctrl.StartScript("racy")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 0, waitExit(t, f))

	require.Eventually(t, func() bool {
		runs, err := f.ctrl.History(context.Background(), "racy", 10)
		require.NoError(t, err)
		return len(runs) == 1 && runs[0].StoppedAt.Valid
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFastExitClosesHistoryRow(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "blink", "Blink", "exit 0\n", "off")

	require.NoError(t, f.ctrl.StartScript("blink"))
	require.Equal(t, 0, waitExit(t, f))

	require.Eventually(t, func() bool {
		runs, err := f.ctrl.History(context.Background(), "blink", 10)
		require.NoError(t, err)
		return len(runs) == 1 && runs[0].StoppedAt.Valid
	}, 5*time.Second, 50*time.Millisecond)
}

func TestShutdownWithNothingRunningClearsStaleSession(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	require.NoError(t, session.NewStore(f.cfg.SessionPath).Save([]string{"stale"}))

	f.ctrl.Shutdown()

	require.Empty(t, session.NewStore(f.cfg.SessionPath).Load())
}

func TestLifecycleEmitsLogEvents(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.addScript(t, "noisy", "Noisy", "exit 3\n", "off")

	require.NoError(t, f.ctrl.StartScript("noisy"))
	require.Equal(t, 3, waitExit(t, f))

	var got []string
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-f.logs:
				got = append(got, msg)
			default:
				return len(got) >= 2
			}
		}
	}, 5*time.Second, 50*time.Millisecond)
	require.Contains(t, got, "Started noisy")
	require.Contains(t, got, "noisy exited with code 3")
}

func TestUpdateSettingsSwitchesInterpreter(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	require.NoError(t, f.ctrl.UpdateSettings(settings.Settings{PythonPath: "/bin/echo"}))
	require.Equal(t, "/bin/echo", f.ctrl.Settings().PythonPath)
}
