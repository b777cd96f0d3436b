package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "list", "start", "stop", "status", "schedule", "history", "settings"} {
		require.Contains(t, out, sub)
	}
}

func TestStartRequiresKey(t *testing.T) {
	_, err := execute(t, "start")
	require.Error(t, err)
}

func TestListAgainstFakeDaemon(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scripts", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"key": "report", "row": 1, "name": "Report",
			"schedule_display": "Daily 09:00", "has_venv": true, "running": false,
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, "list", "--api-url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "report")
	require.Contains(t, out, "Daily 09:00")
}

func TestStartAgainstFakeDaemon(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scripts/report/start", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, "start", "report", "--api-url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "started report")
}

func TestScheduleAgainstFakeDaemon(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/scripts/job/schedule", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body["schedule"]
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := execute(t, "schedule", "job", "interval|45m", "--api-url", srv.URL)
	require.NoError(t, err)
	require.Equal(t, "interval|45m", got)
}
