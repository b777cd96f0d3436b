//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate      = 0x0001
	createNewProcessGroup = 0x00000200
	createNoWindow        = 0x08000000
)

// configureSysProcAttr creates the child in its own process group and
// suppresses the console window Windows would otherwise pop up for a console
// interpreter.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup | createNoWindow,
	}
}

// terminate has no graceful analog on Windows; TerminateProcess is the only
// portable way to stop a console child, so graceful and forced termination
// coincide.
func terminate(pid int) {
	terminateByPID(pid)
}

func kill(pid int) {
	terminateByPID(pid)
}

// terminateByPID hard-stops the process. Failures are swallowed: a PID that
// cannot be opened almost always belongs to a process that already exited.
func terminateByPID(pid int) {
	if pid <= 0 {
		return
	}
	handle, _, _ := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if handle == 0 {
		return
	}
	defer func() { _, _, _ = procCloseHandle.Call(handle) }()
	_, _, _ = procTerminateProcess.Call(handle, uintptr(1))
}
