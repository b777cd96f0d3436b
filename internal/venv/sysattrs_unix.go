//go:build !windows

package venv

import "os/exec"

// hideWindow is a no-op on Unix; installer processes have no console window
// to suppress.
func hideWindow(_ *exec.Cmd) {}
