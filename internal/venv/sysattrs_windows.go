//go:build windows

package venv

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// hideWindow suppresses the console window Windows would otherwise pop up
// for the installer child process.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
}
