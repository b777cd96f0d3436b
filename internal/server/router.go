// Package server exposes the daemon's HTTP API over gin. Handlers are thin
// translations onto the controller; all policy lives there.
//
// Endpoints (under an optional base path):
//
//	GET  /api/scripts              discovered scripts with live state
//	GET  /api/running              running scripts with resource samples
//	POST /api/scripts/:key/start   launch a script
//	POST /api/scripts/:key/stop    stop a script
//	GET  /api/scripts/:key/status  last known process status
//	PUT  /api/scripts/:key/schedule  update the persisted schedule
//	GET  /api/scripts/:key/history recent run records
//	GET  /api/settings             daemon settings
//	PUT  /api/settings             update daemon settings
//	GET  /metrics                  Prometheus metrics
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scriptherd/scriptherd/internal/controller"
	"github.com/scriptherd/scriptherd/internal/history"
	"github.com/scriptherd/scriptherd/internal/metrics"
	"github.com/scriptherd/scriptherd/internal/settings"
)

type Router struct {
	ctrl     *controller.Controller
	basePath string
}

// NewRouter constructs a Router with a configurable basePath ("" for root).
func NewRouter(ctrl *controller.Controller, basePath string) *Router {
	return &Router{ctrl: ctrl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	// Route on the raw path so percent-encoded slashes stay inside the :key
	// param and reach isSafeKey instead of 404ing in the router.
	g.UseRawPath = true
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	api := group.Group("/api")
	api.GET("/scripts", r.handleList)
	api.GET("/running", r.handleRunning)
	api.POST("/scripts/:key/start", r.handleStart)
	api.POST("/scripts/:key/stop", r.handleStop)
	api.GET("/scripts/:key/status", r.handleStatus)
	api.PUT("/scripts/:key/schedule", r.handleSchedule)
	api.GET("/scripts/:key/history", r.handleHistory)
	api.GET("/settings", r.handleGetSettings)
	api.PUT("/settings", r.handlePutSettings)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, ctrl *controller.Controller) *http.Server {
	r := NewRouter(ctrl, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctrl.List())
}

func (r *Router) handleRunning(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctrl.Running())
}

func (r *Router) handleStart(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid script key"})
		return
	}
	if err := r.ctrl.StartScript(key); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid script key"})
		return
	}
	r.ctrl.StopScript(key)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	key := c.Param("key")
	st, ok := r.ctrl.Status(key)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no status for script " + key})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

type scheduleReq struct {
	Schedule string `json:"schedule"`
}

func (r *Router) handleSchedule(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid script key"})
		return
	}
	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.ctrl.UpdateSchedule(key, req.Schedule); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHistory(c *gin.Context) {
	key := c.Param("key")
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := r.ctrl.History(c.Request.Context(), key, limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(c, http.StatusOK, runs)
}

func (r *Router) handleGetSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctrl.Settings())
}

func (r *Router) handlePutSettings(c *gin.Context) {
	var s settings.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.ctrl.UpdateSettings(s); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
