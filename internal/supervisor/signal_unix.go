//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so
// termination signals reach the whole tree, not just the interpreter.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate requests graceful shutdown of the child's process group.
// Best-effort: the group may already be gone.
func terminate(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

// kill force-terminates the child's process group.
func kill(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
