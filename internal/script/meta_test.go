package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMetaMissing(t *testing.T) {
	_, ok := LoadMeta(t.TempDir())
	require.False(t, ok)
}

func TestMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := Meta{
		ScriptName: "Daily Report",
		MainScript: "report.py",
		Schedule:   "daily|09:30",
		Tags:       "reports, internal",
	}
	require.NoError(t, SaveMeta(dir, in))

	out, ok := LoadMeta(dir)
	require.True(t, ok)
	require.Equal(t, in, out)
}

func TestSaveMetaLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveMeta(dir, Meta{ScriptName: "A", MainScript: "a.py", Schedule: "off"}))

	data, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	require.NoError(t, err)
	require.Equal(t, "ScriptName=A\nMainScript=a.py\nSchedule=off\nTags=\n", string(data))
}

func TestLoadMetaDefaultsSchedule(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, MetaFileName),
		[]byte("ScriptName=Bare\nMainScript=run.py\n"), 0o600)
	require.NoError(t, err)

	meta, ok := LoadMeta(dir)
	require.True(t, ok)
	require.Equal(t, "off", meta.Schedule)
	require.False(t, meta.HasSchedule())
}

func TestCreateMeta(t *testing.T) {
	dir := t.TempDir()
	meta, err := CreateMeta(dir, "New Script", "main.py")
	require.NoError(t, err)
	require.Equal(t, "off", meta.Schedule)

	loaded, ok := LoadMeta(dir)
	require.True(t, ok)
	require.Equal(t, "New Script", loaded.ScriptName)
	require.Equal(t, "main.py", loaded.MainScript)
}

func TestTagList(t *testing.T) {
	m := Meta{Tags: " alpha, ,beta ,"}
	require.Equal(t, []string{"alpha", "beta"}, m.TagList())
	require.Nil(t, Meta{}.TagList())
}

func TestScheduleDisplay(t *testing.T) {
	require.Equal(t, "Daily 07:05", Meta{Schedule: "daily|07:05"}.ScheduleDisplay())
	require.Equal(t, "Off", Meta{Schedule: "garbage"}.ScheduleDisplay())
}
