package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// SchedulerHandler handles scheduler-related endpoints.
type SchedulerHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler.
func NewSchedulerHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// TriggerCollectionHandler manually triggers one collection cycle.
// POST /api/scheduler/trigger-collection
func (h *SchedulerHandler) TriggerCollectionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.scheduler.TriggerCollectionNow(); err != nil {
		h.logger.Error().Err(err).Msg("Manual collection trigger failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "collection triggered")
}

// StatusHandler reports whether the scheduler loop is active.
// GET /api/scheduler/status
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
	})
}
