package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scriptherd/scriptherd/internal/venv"
)

// Info is the full representation of a discovered script. Key is the stable
// identifier derived from the folder name.
type Info struct {
	Key             string
	Meta            Meta
	Folder          string
	HasRequirements bool
	HasVenv         bool
	Row             int // 1-based listing index
}

// ProgressFunc receives human-readable import progress lines.
type ProgressFunc func(msg string)

// Store manages the scripts directory. Discovery is a full rescan each time;
// the supervisor and scheduler only ever read the resulting snapshot.
type Store struct {
	dir string
}

// NewStore ensures the scripts directory exists and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// DiscoverAll scans the scripts directory and returns every folder carrying
// a me.ini, sorted by folder name. Folders without metadata are skipped; a
// missing MainScript is auto-detected as the first .py file in the folder.
func (s *Store) DiscoverAll() []Info {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Slice(folders, func(i, j int) bool {
		return strings.ToLower(folders[i]) < strings.ToLower(folders[j])
	})

	var out []Info
	row := 0
	for _, name := range folders {
		folder := filepath.Join(s.dir, name)
		meta, ok := LoadMeta(folder)
		if !ok {
			continue
		}
		if meta.MainScript == "" {
			meta.MainScript = firstPyFile(folder)
		}
		row++
		out = append(out, Info{
			Key:             name,
			Meta:            meta,
			Folder:          folder,
			HasRequirements: fileExists(filepath.Join(folder, "requirements.txt")),
			HasVenv:         venv.Exists(folder),
			Row:             row,
		})
	}
	return out
}

// Find returns the discovered script for key, rescanning the directory.
func (s *Store) Find(key string) (Info, bool) {
	for _, info := range s.DiscoverAll() {
		if info.Key == key {
			return info, true
		}
	}
	return Info{}, false
}

// ScheduleMap returns key -> raw schedule for every script with an active
// schedule; used to seed the scheduler.
func (s *Store) ScheduleMap() map[string]string {
	out := make(map[string]string)
	for _, info := range s.DiscoverAll() {
		if info.Meta.HasSchedule() {
			out[info.Key] = info.Meta.Schedule
		}
	}
	return out
}

// Import copies a source folder into the scripts directory, detects the main
// script, and creates its me.ini. Cache and environment artifacts
// (__pycache__, venv, .venv, *.pyc) are not copied.
func (s *Store) Import(source, scriptName string, onProgress ProgressFunc) (Info, error) {
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	name := filepath.Base(filepath.Clean(source))
	dest := filepath.Join(s.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return Info{}, fmt.Errorf("script folder %q already exists", name)
	}

	progress(fmt.Sprintf("Copying %s to scripts/...", name))
	if err := copyTree(source, dest); err != nil {
		_ = os.RemoveAll(dest)
		return Info{}, fmt.Errorf("copy %s: %w", name, err)
	}

	mainScript := firstPyFile(dest)
	progress(fmt.Sprintf("Creating me.ini for %q...", scriptName))
	meta, err := CreateMeta(dest, scriptName, mainScript)
	if err != nil {
		return Info{}, err
	}
	progress("Import complete: " + scriptName)

	return Info{
		Key:             name,
		Meta:            meta,
		Folder:          dest,
		HasRequirements: fileExists(filepath.Join(dest, "requirements.txt")),
	}, nil
}

// Delete removes a script folder entirely. Cloud-sync tools can keep the
// emptied directory locked briefly, so removal is retried a few times.
func (s *Store) Delete(key string) error {
	folder := filepath.Join(s.dir, key)
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		return nil
	}
	var err error
	for i := 0; i < 5; i++ {
		if err = os.RemoveAll(folder); err == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("delete %s: %w", key, err)
}

var skippedDirs = map[string]bool{"__pycache__": true, "venv": true, ".venv": true}

// copyTree copies src into dst, skipping cache/venv artifacts.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o750)
		}
		if strings.HasSuffix(d.Name(), ".pyc") {
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// firstPyFile returns the alphabetically first .py filename in folder, or "".
func firstPyFile(folder string) string {
	matches, _ := filepath.Glob(filepath.Join(folder, "*.py"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return filepath.Base(matches[0])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
