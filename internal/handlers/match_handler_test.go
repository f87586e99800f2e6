package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

type fakeMatchingService struct {
	started   []string
	cancelled []string
	active    bool
	startErr  error
}

func (s *fakeMatchingService) StartMatching(ctx context.Context, userID string, opts interfaces.MatchOptions) (*models.ProgressEvent, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = append(s.started, userID)
	return &models.ProgressEvent{UserID: userID, Status: "running", Stage: models.StageInitializing}, nil
}

func (s *fakeMatchingService) GetStatus(userID string) *models.ProgressEvent {
	return &models.ProgressEvent{UserID: userID, Status: "idle", Stage: models.StageIdle}
}

func (s *fakeMatchingService) Cancel(userID string) bool {
	s.cancelled = append(s.cancelled, userID)
	return s.active
}

func (s *fakeMatchingService) Shutdown(ctx context.Context) {}

type fakeMatchStorage struct {
	matches   []*models.UserJobMatch
	updated   map[string]string
	updateErr error
}

func (s *fakeMatchStorage) UpsertUserJobMatch(ctx context.Context, match *models.UserJobMatch) error {
	return nil
}

func (s *fakeMatchStorage) GetMatch(ctx context.Context, userID, jobID string) (*models.UserJobMatch, error) {
	return nil, interfaces.ErrNotFound
}

func (s *fakeMatchStorage) ListMatches(ctx context.Context, userID string, limit, offset int) ([]*models.UserJobMatch, error) {
	return s.matches, nil
}

func (s *fakeMatchStorage) UpdateStatus(ctx context.Context, userID, jobID, status string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updated == nil {
		s.updated = make(map[string]string)
	}
	s.updated[models.MatchUserJobKey(userID, jobID)] = status
	return nil
}

func (s *fakeMatchStorage) MatchedJobIDs(ctx context.Context, userID string) (map[string]bool, error) {
	return nil, nil
}

type fakeJobStorage struct {
	jobs map[string]*models.Job
}

func (s *fakeJobStorage) UpsertJob(ctx context.Context, job *models.Job) (string, bool, error) {
	return "", false, nil
}

func (s *fakeJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if job, ok := s.jobs[jobID]; ok {
		return job, nil
	}
	return nil, interfaces.ErrNotFound
}

func (s *fakeJobStorage) GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *fakeJobStorage) SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error {
	return nil
}

func (s *fakeJobStorage) MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error {
	return nil
}

func (s *fakeJobStorage) FindJobsForUser(ctx context.Context, userID string, filter interfaces.JobFilter, fn func(jobs []*models.Job) error) error {
	return nil
}

func newMatchHandler(matching *fakeMatchingService, matches *fakeMatchStorage, jobs *fakeJobStorage) *MatchHandler {
	if matches == nil {
		matches = &fakeMatchStorage{}
	}
	if jobs == nil {
		jobs = &fakeJobStorage{}
	}
	return NewMatchHandler(matching, matches, jobs, arbor.NewLogger())
}

func TestStartMatchingHandler(t *testing.T) {
	matching := &fakeMatchingService{}
	h := newMatchHandler(matching, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/matching/start",
		strings.NewReader(`{"user_id":"user-1","latest_day_only":true}`))
	rec := httptest.NewRecorder()
	h.StartMatchingHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"user-1"}, matching.started)

	var event models.ProgressEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, models.StageInitializing, event.Stage)
}

func TestStartMatchingRequiresUserID(t *testing.T) {
	h := newMatchHandler(&fakeMatchingService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/matching/start", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.StartMatchingHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartMatchingMissingProfileIs404(t *testing.T) {
	matching := &fakeMatchingService{startErr: interfaces.ErrNotFound}
	h := newMatchHandler(matching, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/matching/start",
		strings.NewReader(`{"user_id":"user-1"}`))
	rec := httptest.NewRecorder()
	h.StartMatchingHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWithoutActiveRunIs409(t *testing.T) {
	h := newMatchHandler(&fakeMatchingService{active: false}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/matching/cancel?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	h.CancelHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListMatchesJoinsJobs(t *testing.T) {
	score := 88
	matches := &fakeMatchStorage{matches: []*models.UserJobMatch{
		{UserID: "user-1", JobID: "job_1", SemanticScore: 91, ClaudeScore: &score},
	}}
	jobs := &fakeJobStorage{jobs: map[string]*models.Job{
		"job_1": {ID: "job_1", Title: "Backend Engineer", Company: "Acme"},
	}}
	h := newMatchHandler(&fakeMatchingService{}, matches, jobs)

	req := httptest.NewRequest(http.MethodGet, "/api/matches?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	h.ListMatchesHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Matches []struct {
			JobID       string      `json:"job_id"`
			ClaudeScore *int        `json:"claude_score"`
			Job         *models.Job `json:"job"`
		} `json:"matches"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.NotNil(t, body.Matches[0].Job)
	assert.Equal(t, "Backend Engineer", body.Matches[0].Job.Title)
	require.NotNil(t, body.Matches[0].ClaudeScore)
	assert.Equal(t, 88, *body.Matches[0].ClaudeScore)
}

func TestUpdateStatusValidation(t *testing.T) {
	matches := &fakeMatchStorage{}
	h := newMatchHandler(&fakeMatchingService{}, matches, nil)

	// Unknown status is rejected.
	req := httptest.NewRequest(http.MethodPatch, "/api/matches/status",
		strings.NewReader(`{"user_id":"user-1","job_id":"job_1","status":"archived"}`))
	rec := httptest.NewRecorder()
	h.UpdateStatusHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// "new" is system-assigned, not a user action.
	req = httptest.NewRequest(http.MethodPatch, "/api/matches/status",
		strings.NewReader(`{"user_id":"user-1","job_id":"job_1","status":"new"}`))
	rec = httptest.NewRecorder()
	h.UpdateStatusHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A valid user action goes through.
	req = httptest.NewRequest(http.MethodPatch, "/api/matches/status",
		strings.NewReader(`{"user_id":"user-1","job_id":"job_1","status":"shortlisted"}`))
	rec = httptest.NewRecorder()
	h.UpdateStatusHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shortlisted", matches.updated[models.MatchUserJobKey("user-1", "job_1")])
}

func TestUpdateStatusMissingMatchIs404(t *testing.T) {
	matches := &fakeMatchStorage{updateErr: interfaces.ErrNotFound}
	h := newMatchHandler(&fakeMatchingService{}, matches, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/matches/status",
		strings.NewReader(`{"user_id":"user-1","job_id":"absent","status":"viewed"}`))
	rec := httptest.NewRecorder()
	h.UpdateStatusHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
