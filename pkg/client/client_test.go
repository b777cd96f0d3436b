package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scripts", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]Script{{Key: "report", Name: "Report", Schedule: "daily|09:00", Running: true}})
	})
	mux.HandleFunc("GET /api/running", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]Running{{Status: Status{Key: "report", State: "running", PID: 42}}})
	})
	mux.HandleFunc("POST /api/scripts/report/start", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("POST /api/scripts/ghost/start", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: `unknown script "ghost"`})
	})
	mux.HandleFunc("PUT /api/scripts/report/schedule", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "interval|30m", body["schedule"])
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, New(Config{BaseURL: srv.URL})
}

func TestScripts(t *testing.T) {
	_, c := newTestDaemon(t)
	scripts, err := c.Scripts(context.Background())
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	require.Equal(t, "report", scripts[0].Key)
	require.True(t, scripts[0].Running)
}

func TestRunning(t *testing.T) {
	_, c := newTestDaemon(t)
	running, err := c.Running(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, 42, running[0].PID)
}

func TestStartSurfacesAPIError(t *testing.T) {
	_, c := newTestDaemon(t)
	require.NoError(t, c.Start(context.Background(), "report"))

	err := c.Start(context.Background(), "ghost")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown script")
}

func TestUpdateSchedule(t *testing.T) {
	_, c := newTestDaemon(t)
	require.NoError(t, c.UpdateSchedule(context.Background(), "report", "interval|30m"))
}

func TestIsReachable(t *testing.T) {
	_, c := newTestDaemon(t)
	require.True(t, c.IsReachable(context.Background()))

	down := New(Config{BaseURL: "http://127.0.0.1:1"})
	require.False(t, down.IsReachable(context.Background()))
}
