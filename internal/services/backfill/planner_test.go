package backfill

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

type fakeAdapter struct {
	mu       sync.Mutex
	name     string
	result   *models.SearchResult
	err      error
	searches []models.SearchCriteria
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	a.mu.Lock()
	a.searches = append(a.searches, criteria)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &models.SearchResult{}, nil
}

func (a *fakeAdapter) QuotaPolicy() models.QuotaPolicy {
	return models.QuotaPolicy{Remaining: -1, ResultsPerRequestMax: 100, Period: 24 * time.Hour}
}

type fakeRegistry struct {
	adapters []interfaces.SourceAdapter
	disabled map[string]time.Time
}

func (r *fakeRegistry) Eligible(now time.Time) []interfaces.SourceAdapter { return r.adapters }

func (r *fakeRegistry) DisableUntil(name string, until time.Time) {
	if r.disabled == nil {
		r.disabled = make(map[string]time.Time)
	}
	r.disabled[name] = until
}

type fakeLedger struct {
	marked map[string]int
}

func (l *fakeLedger) IsCombinationBackfilled(ctx context.Context, combo models.Combination) (bool, error) {
	_, ok := l.marked[combo.Key()]
	return ok, nil
}

func (l *fakeLedger) MarkBackfilled(ctx context.Context, combo models.Combination, jobsFound int) error {
	if l.marked == nil {
		l.marked = make(map[string]int)
	}
	l.marked[combo.Key()] = jobsFound
	return nil
}

type fakeJobStore struct {
	upserts int
}

func (s *fakeJobStore) UpsertJob(ctx context.Context, job *models.Job) (string, bool, error) {
	s.upserts++
	return "job_test", true, nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, interfaces.ErrNotFound
}

func (s *fakeJobStore) GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error {
	return nil
}

func (s *fakeJobStore) MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error {
	return nil
}

func (s *fakeJobStore) FindJobsForUser(ctx context.Context, userID string, filter interfaces.JobFilter, fn func(jobs []*models.Job) error) error {
	return nil
}

type fakeQueryStore struct {
	queries []*models.UserSearchQuery
}

func (s *fakeQueryStore) ReplaceUserQueries(ctx context.Context, userID string, queries []*models.UserSearchQuery) error {
	return nil
}

func (s *fakeQueryStore) GetUserQueries(ctx context.Context, userID string) ([]*models.UserSearchQuery, error) {
	return s.queries, nil
}

func (s *fakeQueryStore) GetActiveQueries(ctx context.Context) ([]*models.UserSearchQuery, error) {
	return s.queries, nil
}

func TestPlanForUserBackfillsNewCombinationsOnce(t *testing.T) {
	adapter := &fakeAdapter{
		name: "adzuna",
		result: &models.SearchResult{Jobs: []models.RawJob{
			{ExternalID: "ext-1", Title: "Backend Engineer"},
			{ExternalID: "ext-2", Title: "Platform Engineer"},
		}},
	}
	registry := &fakeRegistry{adapters: []interfaces.SourceAdapter{adapter}}
	ledger := &fakeLedger{}
	jobs := &fakeJobStore{}
	queries := &fakeQueryStore{queries: []*models.UserSearchQuery{
		{UserID: "user-1", TitleKeyword: "Backend Engineer", Location: "Berlin", WorkArrangements: []string{"remote"}},
	}}

	planner := NewPlanner(jobs, queries, ledger, registry, nil, 30, arbor.NewLogger())
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))

	require.Len(t, adapter.searches, 1)
	assert.Equal(t, 30*24, adapter.searches[0].PostedWithinHours)
	assert.Equal(t, []string{"remote"}, adapter.searches[0].WorkArrangementHint)
	assert.Equal(t, 2, jobs.upserts)

	key := models.Combination{TitleKeyword: "Backend Engineer", Location: "Berlin", WorkArrangement: "remote"}.Key()
	assert.Equal(t, 2, ledger.marked[key])

	// A second user registering the same combination does not re-fetch.
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))
	assert.Len(t, adapter.searches, 1)
}

func TestPlanForUserExpandsArrangements(t *testing.T) {
	adapter := &fakeAdapter{name: "adzuna"}
	registry := &fakeRegistry{adapters: []interfaces.SourceAdapter{adapter}}
	queries := &fakeQueryStore{queries: []*models.UserSearchQuery{
		{UserID: "user-1", TitleKeyword: "Backend Engineer", Location: "Berlin", WorkArrangements: []string{"remote", "hybrid"}},
	}}

	planner := NewPlanner(&fakeJobStore{}, queries, &fakeLedger{}, registry, nil, 30, arbor.NewLogger())
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))

	assert.Len(t, adapter.searches, 2, "one backfill per arrangement combination")
}

func TestFailedCombinationIsNotMarked(t *testing.T) {
	adapter := &fakeAdapter{
		name: "adzuna",
		err:  models.NewSourceError("adzuna", models.SourceErrorTransient, assert.AnError),
	}
	registry := &fakeRegistry{adapters: []interfaces.SourceAdapter{adapter}}
	ledger := &fakeLedger{}
	queries := &fakeQueryStore{queries: []*models.UserSearchQuery{
		{UserID: "user-1", TitleKeyword: "Backend Engineer", Location: "Berlin"},
	}}

	planner := NewPlanner(&fakeJobStore{}, queries, ledger, registry, nil, 30, arbor.NewLogger())
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))

	assert.Empty(t, ledger.marked, "failed combination stays pending for a later retry")

	// The next registration retries the combination.
	adapter.err = nil
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))
	assert.Len(t, ledger.marked, 1)
}

func TestQuotaExhaustionDisablesSourceDuringBackfill(t *testing.T) {
	exhausted := &fakeAdapter{
		name: "jsearch",
		err:  models.NewSourceError("jsearch", models.SourceErrorQuotaExhausted, assert.AnError),
	}
	healthy := &fakeAdapter{name: "adzuna", result: &models.SearchResult{}}
	registry := &fakeRegistry{adapters: []interfaces.SourceAdapter{exhausted, healthy}}
	ledger := &fakeLedger{}
	queries := &fakeQueryStore{queries: []*models.UserSearchQuery{
		{UserID: "user-1", TitleKeyword: "Backend Engineer", Location: "Berlin"},
	}}

	planner := NewPlanner(&fakeJobStore{}, queries, ledger, registry, nil, 30, arbor.NewLogger())
	require.NoError(t, planner.PlanForUser(context.Background(), "user-1"))

	_, disabled := registry.disabled["jsearch"]
	assert.True(t, disabled)
	// The healthy source still satisfies the combination.
	assert.Len(t, ledger.marked, 1)
}
