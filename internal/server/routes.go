package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (matching progress push)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Matching pipeline
	mux.HandleFunc("/api/matching/start", s.app.MatchHandler.StartMatchingHandler)
	mux.HandleFunc("/api/matching/status", s.app.MatchHandler.StatusHandler)
	mux.HandleFunc("/api/matching/cancel", s.app.MatchHandler.CancelHandler)

	// API routes - Matches
	mux.HandleFunc("/api/matches", s.app.MatchHandler.ListMatchesHandler)
	mux.HandleFunc("/api/matches/status", s.app.MatchHandler.UpdateStatusHandler)

	// API routes - Queries and profile
	mux.HandleFunc("/api/queries", s.app.QueryHandler.QueriesRoute)
	mux.HandleFunc("/api/profile", s.app.ProfileHandler.ProfileRoute)

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/trigger-collection", s.app.SchedulerHandler.TriggerCollectionHandler)
	mux.HandleFunc("/api/scheduler/status", s.app.SchedulerHandler.StatusHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusAppHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}
