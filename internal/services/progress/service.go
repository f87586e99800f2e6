package progress

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// Service holds the latest progress event per user. State is in-memory
// only: a restart resets every user to idle, and persisted matches remain
// the source of truth for results.
type Service struct {
	mu     sync.RWMutex
	latest map[string]*models.ProgressEvent
	logger arbor.ILogger
}

// NewService creates the progress broker.
func NewService(logger arbor.ILogger) interfaces.ProgressService {
	return &Service{
		latest: make(map[string]*models.ProgressEvent),
		logger: logger,
	}
}

// Set stores the latest event for a user. Within a run the percentage is
// monotone: a stale event that would move the bar backwards is clamped to
// the previous value. A new run (initializing stage) or a terminal
// predecessor resets freely.
func (s *Service) Set(userID string, event *models.ProgressEvent) {
	if event == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.latest[userID]; ok {
		sameRun := event.Stage != models.StageInitializing && !prev.Stage.IsTerminal()
		if sameRun && event.Progress < prev.Progress {
			event.Progress = prev.Progress
		}
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = time.Now().UTC()
	}
	s.latest[userID] = event
}

// Get returns the latest event, or an idle event for unknown users.
func (s *Service) Get(userID string) *models.ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if event, ok := s.latest[userID]; ok {
		copied := *event
		return &copied
	}
	return &models.ProgressEvent{
		UserID: userID,
		Status: "idle",
		Stage:  models.StageIdle,
	}
}

// Clear drops the stored event for a user.
func (s *Service) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, userID)
}
