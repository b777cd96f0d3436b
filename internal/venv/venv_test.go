package venv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

// fakePython is a shell script standing in for a Python interpreter: it
// handles `-m venv <dir>` by creating the venv layout, and any pip install
// by printing progress lines.
func fakePython(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "python")
	body := `#!/bin/sh
if [ "$2" = "venv" ]; then
  mkdir -p "$3/bin"
  cp "$0" "$3/bin/python"
  chmod +x "$3/bin/python"
  exit 0
fi
echo "Collecting example-pkg"
echo "Successfully installed example-pkg"
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))
	return path
}

type installResult struct {
	mu    sync.Mutex
	lines []string
	ok    bool
}

func (r *installResult) onOutput(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *installResult) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("install did not finish")
	}
}

func TestPythonPathPerPlatform(t *testing.T) {
	folder := t.TempDir()
	p, ok := Python(folder)
	require.False(t, ok)
	if runtime.GOOS == "windows" {
		require.Equal(t, filepath.Join(folder, "venv", "Scripts", "python.exe"), p)
	} else {
		require.Equal(t, filepath.Join(folder, "venv", "bin", "python"), p)
	}
}

func TestInstallWithoutRequirements(t *testing.T) {
	requireUnix(t)
	folder := t.TempDir()
	m := New(fakePython(t), nil)

	res := &installResult{}
	done := m.Install(folder, res.onOutput, func(ok bool) { res.ok = ok })
	wait(t, done)

	require.False(t, res.ok)
	require.Contains(t, res.joined(), "requirements.txt not found")
	require.False(t, Exists(folder))
}

func TestInstallCreatesVenvAndRunsPip(t *testing.T) {
	requireUnix(t)
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "requirements.txt"), []byte("example-pkg\n"), 0o600))
	m := New(fakePython(t), nil)

	res := &installResult{}
	done := m.Install(folder, res.onOutput, func(ok bool) { res.ok = ok })
	wait(t, done)

	require.True(t, res.ok)
	require.True(t, Exists(folder))
	_, ok := Python(folder)
	require.True(t, ok)

	out := res.joined()
	require.Contains(t, out, "Creating virtual environment")
	require.Contains(t, out, "Successfully installed example-pkg")
	require.Contains(t, out, "Requirements installed successfully.")
}

func TestInstallReusesExistingVenv(t *testing.T) {
	requireUnix(t)
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "requirements.txt"), []byte("x\n"), 0o600))
	m := New(fakePython(t), nil)

	res1 := &installResult{}
	wait(t, m.Install(folder, res1.onOutput, func(ok bool) { res1.ok = ok }))
	require.True(t, res1.ok)

	res2 := &installResult{}
	wait(t, m.Install(folder, res2.onOutput, func(ok bool) { res2.ok = ok }))
	require.True(t, res2.ok)
	require.Contains(t, res2.joined(), "Virtual environment already exists.")
}
