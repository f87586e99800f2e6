package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return f.ChatJSON(ctx, messages, nil)
}

func (f *fakeLLM) ChatJSON(ctx context.Context, messages []interfaces.Message, schema map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	f.calls++
	return resp, nil
}

func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLLM) Close() error                          { return nil }

type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	saved    map[string]*models.AIMetadata
	failedAt map[string]time.Time
}

func newFakeJobStore(jobs ...*models.Job) *fakeJobStore {
	s := &fakeJobStore{
		jobs:     make(map[string]*models.Job),
		saved:    make(map[string]*models.AIMetadata),
		failedAt: make(map[string]time.Time),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) UpsertJob(ctx context.Context, job *models.Job) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.ID, true, nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID], nil
}

func (s *fakeJobStore) GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if j.NeedsEnrichment(now, 24*time.Hour) && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeJobStore) SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[jobID] = meta
	s.jobs[jobID].AI = meta
	return nil
}

func (s *fakeJobStore) MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedAt[jobID] = at
	s.jobs[jobID].EnrichFailedAt = &at
	return nil
}

func (s *fakeJobStore) FindJobsForUser(ctx context.Context, userID string, filter interfaces.JobFilter, fn func(jobs []*models.Job) error) error {
	return nil
}

const validEnrichment = `{
	"key_skills": ["Go", "Kubernetes"],
	"keywords": ["backend"],
	"work_arrangement": "Remote",
	"experience_level": "5-10",
	"semantic_summary": "Senior backend role building Go services on Kubernetes."
}`

func TestEnrichJobSavesNormalizedMetadata(t *testing.T) {
	job := &models.Job{ID: "job-1", Title: "Backend Engineer", Description: "Go, k8s"}
	store := newFakeJobStore(job)
	svc := NewService(store, &fakeLLM{responses: []string{validEnrichment}}, 1, arbor.NewLogger())

	require.NoError(t, svc.EnrichJob(context.Background(), job))

	meta := store.saved["job-1"]
	require.NotNil(t, meta)
	assert.Equal(t, []string{"go", "kubernetes"}, meta.KeySkills)
	assert.Equal(t, models.ArrangementRemote, meta.WorkArrangement)
	assert.Equal(t, models.ExperienceSenior, meta.ExperienceLevel)
	assert.NotEmpty(t, meta.SemanticSummary)
}

func TestEnrichJobIsIdempotent(t *testing.T) {
	job := &models.Job{
		ID: "job-1", Title: "Engineer",
		AI: &models.AIMetadata{SemanticSummary: "done"},
	}
	store := newFakeJobStore(job)
	fake := &fakeLLM{responses: []string{validEnrichment}}
	svc := NewService(store, fake, 1, arbor.NewLogger())

	require.NoError(t, svc.EnrichJob(context.Background(), job))
	assert.Equal(t, 0, fake.calls, "already-enriched job must not hit the model")
}

func TestEnrichJobRepairsFencedResponse(t *testing.T) {
	job := &models.Job{ID: "job-1", Title: "Engineer", Description: "desc"}
	store := newFakeJobStore(job)
	fenced := "```json\n" + validEnrichment + "\n```"
	svc := NewService(store, &fakeLLM{responses: []string{fenced}}, 1, arbor.NewLogger())

	require.NoError(t, svc.EnrichJob(context.Background(), job))
	require.NotNil(t, store.saved["job-1"])
}

func TestEnrichJobDoubleParseFailureStampsCooldown(t *testing.T) {
	job := &models.Job{ID: "job-1", Title: "Engineer", Description: "desc"}
	store := newFakeJobStore(job)
	fake := &fakeLLM{responses: []string{"not json at all", "still not json"}}
	svc := NewService(store, fake, 1, arbor.NewLogger())

	err := svc.EnrichJob(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, 2, fake.calls)
	_, stamped := store.failedAt["job-1"]
	assert.True(t, stamped)
}

func TestEnrichPendingRespectsBudget(t *testing.T) {
	jobs := []*models.Job{
		{ID: "a", Title: "A", Description: "d"},
		{ID: "b", Title: "B", Description: "d"},
		{ID: "c", Title: "C", Description: "d"},
	}
	store := newFakeJobStore(jobs...)
	fake := &fakeLLM{responses: []string{validEnrichment}}
	svc := NewService(store, fake, 2, arbor.NewLogger())

	enriched, err := svc.EnrichPending(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, enriched)
	assert.Len(t, store.saved, 2)
}
