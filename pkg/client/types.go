package client

import "time"

// Script is one row of the daemon's script listing.
type Script struct {
	Key             string   `json:"key"`
	Row             int      `json:"row"`
	Name            string   `json:"name"`
	MainScript      string   `json:"main_script"`
	Schedule        string   `json:"schedule"`
	ScheduleDisplay string   `json:"schedule_display,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	HasRequirements bool     `json:"has_requirements"`
	HasVenv         bool     `json:"has_venv"`
	Running         bool     `json:"running"`
}

// Status is the last known process state for a script.
type Status struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	State       string    `json:"state"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	StoppedAt   time.Time `json:"stopped_at,omitzero"`
	ExitCode    int       `json:"exit_code"`
}

// Resources is a point-in-time resource sample of a running script.
type Resources struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	NumThreads int32   `json:"num_threads"`
}

// Running combines status with the newest resource sample.
type Running struct {
	Status
	Resources *Resources `json:"resources,omitempty"`
}

// Run is one recorded execution from the history store.
type Run struct {
	ID        int64     `json:"id"`
	Script    string    `json:"script"`
	Trigger   string    `json:"trigger"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Settings mirrors the daemon settings document.
type Settings struct {
	PythonPath       string `json:"python_path"`
	ChromeDriverPath string `json:"chromedriver_path"`
	GoogleChromePath string `json:"google_chrome_path"`
}

// ErrorResponse is the daemon's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
