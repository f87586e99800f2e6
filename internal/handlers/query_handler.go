package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// QueryHandler manages user search query registration.
type QueryHandler struct {
	queries interfaces.QueryService
	storage interfaces.QueryStorage
	logger  arbor.ILogger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(queries interfaces.QueryService, storage interfaces.QueryStorage, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		storage: storage,
		logger:  logger,
	}
}

type registerQueriesRequest struct {
	UserID           string   `json:"user_id"`
	Titles           []string `json:"titles"`
	Locations        []string `json:"locations"`
	WorkArrangements []string `json:"work_arrangements"`
}

// RegisterHandler replaces the user's search queries and triggers
// backfill for new combinations.
// POST /api/queries
func (h *QueryHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerQueriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := h.queries.RegisterUserQueries(r.Context(), req.UserID, req.Titles, req.Locations, req.WorkArrangements)
	if err != nil {
		if isValidationError(err) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to register queries")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "queries registered")
}

// ListHandler returns the user's registered queries.
// GET /api/queries?user_id=
func (h *QueryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	rows, err := h.storage.GetUserQueries(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load queries")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queries": rows,
		"count":   len(rows),
	})
}

// QueriesRoute dispatches GET/POST on /api/queries.
func (h *QueryHandler) QueriesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListHandler(w, r)
	case http.MethodPost:
		h.RegisterHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// isValidationError distinguishes caller mistakes from server faults.
func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "required") || strings.Contains(msg, "unknown work arrangement")
}
