// Package session persists which scripts were running at shutdown so the
// next launch can offer to restore them.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// State is the serialized session record.
type State struct {
	RunningKeys []string `json:"running_scripts"`
}

// Store reads and writes the session state file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists the list of running keys. Callers only invoke this at
// shutdown, and only with a non-empty list; an empty list is written as-is
// should a caller pass one.
func (s *Store) Save(keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.MarshalIndent(State{RunningKeys: keys}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Load returns the previously saved keys. A missing or unparseable file
// yields an empty list, never an error: stale or corrupt session state must
// not block startup.
func (s *Store) Load() []string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	return st.RunningKeys
}

// Clear deletes the session file. Called unconditionally after a restore
// attempt (accepted or declined) so a crash loop can never replay stale
// state more than once.
func (s *Store) Clear() {
	_ = os.Remove(s.path)
}
