package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// ProfileHandler stores and serves parsed CV profiles. Parsing itself
// happens upstream; this endpoint receives the already-structured result.
type ProfileHandler struct {
	profiles interfaces.ProfileStorage
	logger   arbor.ILogger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles interfaces.ProfileStorage, logger arbor.ILogger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// ProfileRoute dispatches GET/PUT on /api/profile.
func (h *ProfileHandler) ProfileRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getHandler(w, r)
	case http.MethodPut, http.MethodPost:
		h.saveHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProfileHandler) getHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "no profile for user")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load profile")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) saveHandler(w http.ResponseWriter, r *http.Request) {
	var profile models.CVProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if profile.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if profile.SemanticSummary == "" {
		WriteError(w, http.StatusBadRequest, "semantic_summary is required")
		return
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := h.profiles.SaveProfile(r.Context(), &profile); err != nil {
		h.logger.Error().Err(err).Str("user_id", profile.UserID).Msg("Failed to save profile")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info().Str("user_id", profile.UserID).Msg("CV profile saved")
	WriteSuccess(w, "profile saved")
}
