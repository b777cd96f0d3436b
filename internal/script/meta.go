// Package script discovers runnable script folders and manages their
// per-folder metadata file (me.ini).
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/scriptherd/scriptherd/internal/schedule"
)

// MetaFileName is the per-folder metadata file. It has no section header,
// just Key=Value lines; external tools read and write the same file, so the
// written layout must stay bit-exact.
const MetaFileName = "me.ini"

// Meta is the parsed contents of a folder's me.ini.
type Meta struct {
	ScriptName string
	MainScript string
	Schedule   string
	Tags       string
}

// TagList returns the Tags field split into cleaned tokens.
func (m Meta) TagList() []string {
	if m.Tags == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(m.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HasSchedule reports whether the folder carries an active schedule string.
func (m Meta) HasSchedule() bool {
	return m.Schedule != "" && !strings.EqualFold(m.Schedule, "off")
}

// ScheduleDisplay renders a short schedule summary for listings.
func (m Meta) ScheduleDisplay() string {
	if !m.HasSchedule() {
		return ""
	}
	return schedule.Parse(m.Schedule).String()
}

// LoadMeta reads a folder's me.ini. ok is false when the file is absent or
// unparseable, which marks the folder as not runnable.
func LoadMeta(folder string) (Meta, bool) {
	// me.ini is headerless; ini.v1 puts keys before any section into the
	// default section.
	f, err := ini.Load(filepath.Join(folder, MetaFileName))
	if err != nil {
		return Meta{}, false
	}
	sec := f.Section(ini.DefaultSection)
	m := Meta{
		ScriptName: sec.Key("ScriptName").String(),
		MainScript: sec.Key("MainScript").String(),
		Schedule:   sec.Key("Schedule").String(),
		Tags:       sec.Key("Tags").String(),
	}
	if m.Schedule == "" {
		m.Schedule = "off"
	}
	return m, true
}

// SaveMeta writes a folder's me.ini without a section header, preserving the
// fixed key order external files use.
func SaveMeta(folder string, m Meta) error {
	content := fmt.Sprintf("ScriptName=%s\nMainScript=%s\nSchedule=%s\nTags=%s\n",
		m.ScriptName, m.MainScript, m.Schedule, m.Tags)
	return os.WriteFile(filepath.Join(folder, MetaFileName), []byte(content), 0o600)
}

// CreateMeta writes a fresh me.ini into folder and returns it.
func CreateMeta(folder, scriptName, mainScript string) (Meta, error) {
	m := Meta{ScriptName: scriptName, MainScript: mainScript, Schedule: "off"}
	if err := SaveMeta(folder, m); err != nil {
		return Meta{}, err
	}
	return m, nil
}
