package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// MatchHandler exposes the matching pipeline: run control, progress
// polling, match listing and user status updates.
type MatchHandler struct {
	matching interfaces.MatchingService
	matches  interfaces.MatchStorage
	jobs     interfaces.JobStorage
	logger   arbor.ILogger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(matching interfaces.MatchingService, matches interfaces.MatchStorage, jobs interfaces.JobStorage, logger arbor.ILogger) *MatchHandler {
	return &MatchHandler{
		matching: matching,
		matches:  matches,
		jobs:     jobs,
		logger:   logger,
	}
}

type startMatchingRequest struct {
	UserID         string `json:"user_id"`
	ForceReanalyze bool   `json:"force_reanalyze"`
	LatestDayOnly  bool   `json:"latest_day_only"`
}

// StartMatchingHandler launches a matching run for a user.
// POST /api/matching/start
func (h *MatchHandler) StartMatchingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startMatchingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	event, err := h.matching.StartMatching(r.Context(), req.UserID, interfaces.MatchOptions{
		ForceReanalyze: req.ForceReanalyze,
		LatestDayOnly:  req.LatestDayOnly,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to start matching run")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, event)
}

// StatusHandler returns the latest progress event for a user.
// GET /api/matching/status?user_id=
func (h *MatchHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, h.matching.GetStatus(userID))
}

// CancelHandler requests a cooperative cancel of the user's active run.
// POST /api/matching/cancel?user_id=
func (h *MatchHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	if !h.matching.Cancel(userID) {
		WriteError(w, http.StatusConflict, "no active matching run for user")
		return
	}
	WriteSuccess(w, "cancel requested")
}

// matchView joins a match row with its job for list responses.
type matchView struct {
	*models.UserJobMatch
	Job *models.Job `json:"job,omitempty"`
}

// ListMatchesHandler returns a user's matches ordered by score.
// GET /api/matches?user_id=&limit=&offset=
func (h *MatchHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	limit, offset := GetPagingParams(r, 50, 200)

	matches, err := h.matches.ListMatches(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list matches")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]matchView, 0, len(matches))
	for _, match := range matches {
		view := matchView{UserJobMatch: match}
		if job, err := h.jobs.GetJob(r.Context(), match.JobID); err == nil {
			view.Job = job
		}
		views = append(views, view)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"matches": views,
		"count":   len(views),
		"limit":   limit,
		"offset":  offset,
	})
}

type updateStatusRequest struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// UpdateStatusHandler applies a user action to a match.
// PATCH /api/matches/status
func (h *MatchHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.JobID == "" {
		WriteError(w, http.StatusBadRequest, "user_id and job_id are required")
		return
	}
	if !models.IsUserManagedStatus(req.Status) {
		WriteError(w, http.StatusBadRequest, "status must be one of viewed, shortlisted, applied, hidden")
		return
	}

	if err := h.matches.UpdateStatus(r.Context(), req.UserID, req.JobID, req.Status); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.Error().Err(err).
			Str("user_id", req.UserID).
			Str("job_id", req.JobID).
			Msg("Failed to update match status")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "match status updated")
}
