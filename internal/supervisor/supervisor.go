// Package supervisor owns the map of live child script processes: launch,
// line-oriented output streaming, graceful-then-forced termination, and
// state tracking.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scriptherd/scriptherd/internal/venv"
)

const (
	// gracePeriod is how long Stop waits after a graceful termination
	// request before escalating to a forced kill.
	gracePeriod = 3 * time.Second
	// killPeriod bounds the wait after the forced kill.
	killPeriod = 5 * time.Second
)

// OutputFunc receives one decoded line of child output. It may be invoked
// concurrently from multiple reader goroutines.
type OutputFunc func(key, line string)

// ExitFunc is invoked exactly once per process instance after the child has
// fully exited.
type ExitFunc func(key string, code int)

// Supervisor manages all running script processes. A single mutex guards the
// process map and every per-process state field; it is never held across a
// spawn, a pipe read, an exit wait, or a callback.
type Supervisor struct {
	mu          sync.Mutex
	procs       map[string]*ManagedProcess
	interpreter string
	logger      *slog.Logger
}

// New builds a supervisor launching children with the given global
// interpreter (used when a script folder has no venv of its own).
func New(interpreter string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		procs:       make(map[string]*ManagedProcess),
		interpreter: interpreter,
		logger:      logger,
	}
}

// UpdateInterpreter replaces the global interpreter used for future Start
// calls. Already-running processes are unaffected.
func (s *Supervisor) UpdateInterpreter(path string) {
	s.mu.Lock()
	s.interpreter = path
	s.mu.Unlock()
}

// Start launches scriptPath under key with workDir as the working directory.
// If a process for key is already running the call is a no-op and started is
// false. A scheduled trigger and a manual start racing on the same key both
// pass through this guard, so they cannot double-launch, and the caller can
// tell a fresh launch from a backed-off one.
//
// The child runs as `<interpreter> -u <scriptPath>` with stderr merged into
// stdout; the interpreter is the folder's venv python when present, else the
// configured global one. Spawn failures are returned to the caller (and the
// entry left queryable in the errored state); they are the one class of
// error the UI must be able to show.
func (s *Supervisor) Start(key, scriptPath, displayName, workDir string, onOutput OutputFunc, onExit ExitFunc) (started bool, err error) {
	s.mu.Lock()
	if s.claimed(key) {
		s.mu.Unlock()
		return false, nil
	}
	python := s.interpreter
	s.mu.Unlock()

	if p, ok := venv.Python(workDir); ok {
		python = p
	}

	// #nosec G204 -- interpreter and script come from discovered metadata
	cmd := exec.Command(python, "-u", scriptPath)
	cmd.Dir = workDir
	configureSysProcAttr(cmd)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("start %s: %w", key, err)
	}
	cmd.Stderr = cmd.Stdout // merge stderr into the same line stream

	p := &ManagedProcess{
		key:         key,
		displayName: displayName,
		workDir:     workDir,
		cmd:         cmd,
		state:       StateIdle,
		done:        make(chan struct{}),
	}

	// Claim the key before spawning so a concurrent Start for the same key
	// sees a running entry and backs off.
	s.mu.Lock()
	if s.claimed(key) {
		s.mu.Unlock()
		_ = pipe.Close()
		return false, nil
	}
	p.transition(StateRunning)
	p.startedAt = time.Now()
	s.procs[key] = p
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		p.transition(StateErrored)
		p.stoppedAt = time.Now()
		close(p.done)
		s.mu.Unlock()
		return false, fmt.Errorf("start %s: %w", key, err)
	}

	s.logger.Debug("process started", "key", key, "pid", cmd.Process.Pid, "interpreter", python)

	// One reader per process instance, bound to p rather than to the key: if
	// the key is restarted, a stale reader finalizes its own instance only.
	go s.read(p, pipe, onOutput, onExit)
	return true, nil
}

// claimed reports whether key has a live process. Caller holds mu.
func (s *Supervisor) claimed(key string) bool {
	p, ok := s.procs[key]
	return ok && (p.state == StateRunning || p.state == StateStopping)
}

// read streams child output until the pipe closes or a stop is requested,
// then reaps the process and reports the exit exactly once.
func (s *Supervisor) read(p *ManagedProcess, pipe io.ReadCloser, onOutput OutputFunc, onExit ExitFunc) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if s.stateOf(p) == StateStopping {
			// Don't block shutdown on a child that keeps emitting output;
			// closing the pipe unblocks nothing further and Wait below still
			// reaps the process.
			_ = pipe.Close()
			break
		}
		line := strings.TrimRight(strings.ToValidUTF8(scanner.Text(), "�"), "\r")
		if line != "" && onOutput != nil {
			onOutput(p.key, line)
		}
	}

	// Sole waiter for this instance: Stop never calls Wait, it waits on done.
	code := exitCode(p.cmd.Wait())

	s.mu.Lock()
	p.exitCode = code
	p.stoppedAt = time.Now()
	// A Stopping process is finalized by Stop itself once termination is
	// confirmed; everything else lands in Stopped here.
	if p.state != StateStopping {
		p.transition(StateStopped)
	}
	close(p.done)
	s.mu.Unlock()

	if onExit != nil {
		onExit(p.key, code)
	}
}

// Stop requests graceful termination of the keyed process and escalates to a
// forced kill after the grace period. Stopping a key with no running process
// is a no-op. Termination errors are swallowed: the process may already be
// gone, and both this method and the reader must tolerate reaping races.
func (s *Supervisor) Stop(key string) {
	s.mu.Lock()
	p, ok := s.procs[key]
	if !ok || p.state != StateRunning {
		s.mu.Unlock()
		return
	}
	p.transition(StateStopping)
	cmd, done := p.cmd, p.done
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		terminate(cmd.Process.Pid)
		select {
		case <-done:
		case <-time.After(gracePeriod):
			kill(cmd.Process.Pid)
			select {
			case <-done:
			case <-time.After(killPeriod):
				s.logger.Warn("process did not exit after kill", "key", key)
			}
		}
	}

	s.mu.Lock()
	if p.state == StateStopping {
		p.transition(StateStopped)
	}
	s.mu.Unlock()
}

// IsRunning reports whether the keyed process is currently running.
func (s *Supervisor) IsRunning(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[key]
	return ok && p.state == StateRunning
}

// RunningKeys returns the keys of all running processes, sorted for
// deterministic session snapshots.
func (s *Supervisor) RunningKeys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.procs))
	for key, p := range s.procs {
		if p.state == StateRunning {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// RunningNames returns the display names of all running processes.
func (s *Supervisor) RunningNames() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for _, p := range s.procs {
		if p.state == StateRunning {
			names = append(names, p.displayName)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// Status returns the snapshot for key; ok is false when the key has never
// been started.
func (s *Supervisor) Status(key string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[key]
	if !ok {
		return Status{}, false
	}
	return p.snapshot(), true
}

// Statuses returns snapshots of every tracked process, terminal states
// included (entries stay queryable until the next Start for the key).
func (s *Supervisor) Statuses() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ShutdownAll stops every running process. Safe to call with none running.
func (s *Supervisor) ShutdownAll() {
	for _, key := range s.RunningKeys() {
		s.Stop(key)
	}
}

func (s *Supervisor) stateOf(p *ManagedProcess) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.state
}
