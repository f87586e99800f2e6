package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// StatusHandler serves health, version and application status endpoints.
type StatusHandler struct {
	scheduler interfaces.SchedulerService
	storage   interfaces.StorageManager
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(scheduler interfaces.SchedulerService, storage interfaces.StorageManager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		scheduler: scheduler,
		storage:   storage,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthHandler is the liveness probe with per-component readiness.
// GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	components := map[string]string{
		"scheduler": "stopped",
		"storage":   "down",
	}
	if h.scheduler != nil && h.scheduler.IsRunning() {
		components["scheduler"] = "running"
	}
	// A read of an absent key still proves the store answers.
	if h.storage != nil {
		_, err := h.storage.KeyValueStorage().Get(r.Context(), "health_probe")
		if err == nil || errors.Is(err, interfaces.ErrNotFound) {
			components["storage"] = "up"
		}
	}

	status := "ok"
	code := http.StatusOK
	if components["storage"] != "up" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// VersionHandler returns build version information.
// GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// StatusAppHandler returns a high-level application status snapshot.
// GET /api/status
func (h *StatusHandler) StatusAppHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":           common.GetVersion(),
		"scheduler_running": h.scheduler.IsRunning(),
		"uptime":            time.Since(h.startedAt).Round(time.Second).String(),
	})
}
