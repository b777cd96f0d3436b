package supervisor

import (
	"errors"
	"os/exec"
	"time"
)

// ManagedProcess tracks a single child process instance. All fields are
// guarded by the owning Supervisor's mutex; the struct itself carries no
// lock so state reads and transitions stay on the supervisor's single-mutex
// discipline.
type ManagedProcess struct {
	key         string
	displayName string
	workDir     string

	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	stoppedAt time.Time
	exitCode  int

	// done is closed by the reader goroutine once cmd.Wait has returned.
	// Stop waits on it instead of calling Wait itself, so the single-waiter
	// rule of os/exec is never violated.
	done chan struct{}
}

// transition applies a state change if the transition table allows it and
// reports whether it happened. Illegal transitions are no-ops, which is what
// makes Start/Stop idempotency mechanically checkable.
func (p *ManagedProcess) transition(to State) bool {
	if !canTransition(p.state, to) {
		return false
	}
	p.state = to
	return true
}

// Status is an externally consumable snapshot of a managed process.
type Status struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	State       string    `json:"state"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	StoppedAt   time.Time `json:"stopped_at,omitzero"`
	ExitCode    int       `json:"exit_code"`
}

func (p *ManagedProcess) snapshot() Status {
	st := Status{
		Key:         p.key,
		DisplayName: p.displayName,
		State:       p.state.String(),
		StartedAt:   p.startedAt,
		StoppedAt:   p.stoppedAt,
		ExitCode:    p.exitCode,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
	}
	return st
}

// exitCode normalizes cmd.Wait errors into a numeric exit code. A process
// killed by a signal reports -1, matching os/exec.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
