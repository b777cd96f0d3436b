// Package venv creates per-script virtual environments and installs their
// requirements, streaming installer output through the same line-callback
// contract the supervisor uses for script output.
package venv

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// OutputFunc receives one line of installer output.
type OutputFunc func(line string)

// CompleteFunc reports overall install success.
type CompleteFunc func(ok bool)

// Dir returns the venv directory for a script folder.
func Dir(folder string) string {
	return filepath.Join(folder, "venv")
}

// Exists reports whether a venv directory is present in the folder.
func Exists(folder string) bool {
	st, err := os.Stat(Dir(folder))
	return err == nil && st.IsDir()
}

// Python returns the venv interpreter path inside folder, and whether it
// exists on disk.
func Python(folder string) (string, bool) {
	p := filepath.Join(Dir(folder), "bin", "python")
	if runtime.GOOS == "windows" {
		p = filepath.Join(Dir(folder), "Scripts", "python.exe")
	}
	st, err := os.Stat(p)
	return p, err == nil && !st.IsDir()
}

// Manager creates venvs and runs pip installs for script folders.
type Manager struct {
	mu     sync.Mutex
	python string
	logger *slog.Logger
}

func New(pythonPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{python: pythonPath, logger: logger}
}

// UpdatePython replaces the interpreter used to create new venvs. Installs
// already in flight keep the interpreter they started with.
func (m *Manager) UpdatePython(path string) {
	m.mu.Lock()
	m.python = path
	m.mu.Unlock()
}

// Install creates the folder's venv if needed and installs requirements.txt
// into it on a background goroutine, streaming output line-by-line. The
// returned channel is closed when the install finishes (used by tests and
// shutdown paths that want to wait).
func (m *Manager) Install(folder string, onOutput OutputFunc, onComplete CompleteFunc) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ok := m.install(folder, onOutput)
		if onComplete != nil {
			onComplete(ok)
		}
	}()
	return done
}

func (m *Manager) install(folder string, onOutput OutputFunc) bool {
	emit := func(line string) {
		if onOutput != nil {
			onOutput(line)
		}
	}

	reqFile := filepath.Join(folder, "requirements.txt")
	if _, err := os.Stat(reqFile); err != nil {
		emit(fmt.Sprintf("requirements.txt not found in %s", filepath.Base(folder)))
		return false
	}

	m.mu.Lock()
	python := m.python
	m.mu.Unlock()

	if !Exists(folder) {
		emit(fmt.Sprintf("Creating virtual environment in %s/venv...", filepath.Base(folder)))
		// #nosec G204 -- interpreter path comes from settings
		cmd := exec.Command(python, "-m", "venv", Dir(folder))
		hideWindow(cmd)
		if out, err := cmd.CombinedOutput(); err != nil {
			emit("Error creating venv: " + strings.TrimSpace(string(out)))
			return false
		}
		emit("Virtual environment created.")
	} else {
		emit("Virtual environment already exists.")
	}

	venvPython, ok := Python(folder)
	if !ok {
		emit("venv interpreter missing after creation")
		return false
	}

	emit("Installing requirements from requirements.txt...")
	// #nosec G204 -- venv interpreter is derived from the script folder
	cmd := exec.Command(venvPython, "-u", "-m", "pip", "install", "-r", reqFile)
	cmd.Dir = folder
	hideWindow(cmd)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		emit("Error: " + err.Error())
		return false
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		emit("Error: " + err.Error())
		return false
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(strings.ToValidUTF8(scanner.Text(), "�"), "\r")
		if line != "" {
			emit(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		emit(fmt.Sprintf("pip install failed: %v", err))
		return false
	}
	emit("Requirements installed successfully.")
	return true
}
