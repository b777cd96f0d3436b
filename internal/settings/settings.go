// Package settings reads and writes the application settings file
// (settings.ini). The ini layout is a format contract: external tools edit
// the same file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Settings holds the application-level configuration.
type Settings struct {
	PythonPath       string `json:"python_path"`
	ChromeDriverPath string `json:"chromedriver_path"`
	GoogleChromePath string `json:"google_chrome_path"`
}

// Manager loads and persists Settings at a fixed path.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads settings.ini, creating a default file when missing. A corrupt
// file degrades to zero-value settings rather than failing startup.
func (m *Manager) Load() Settings {
	data, err := os.ReadFile(m.path)
	if err != nil {
		s := Settings{}
		_ = m.Save(s)
		return s
	}

	f, err := ini.Load(data)
	if err != nil {
		return Settings{}
	}
	sec := f.Section(ini.DefaultSection)
	return Settings{
		PythonPath:       sec.Key("PythonPath").String(),
		ChromeDriverPath: sec.Key("ChromeDriverPath").String(),
		GoogleChromePath: sec.Key("GoogleChromePath").String(),
	}
}

// Save writes settings.ini with a fixed key order.
func (m *Manager) Save(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return err
	}
	content := fmt.Sprintf("[DEFAULT]\nPythonPath=%s\nChromeDriverPath=%s\nGoogleChromePath=%s\n",
		s.PythonPath, s.ChromeDriverPath, s.GoogleChromePath)
	return os.WriteFile(m.path, []byte(content), 0o600)
}
