package matching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
	"github.com/Inclusist/job-monitor-sub000/internal/services/progress"
)

// memStores is an in-memory StorageManager for engine tests.
type memStores struct {
	mu         sync.Mutex
	jobs       map[string]*models.Job
	matches    map[string]*models.UserJobMatch
	queries    []*models.UserSearchQuery
	profiles   map[string]*models.CVProfile
	embeddings map[string][]float32
}

func newMemStores() *memStores {
	return &memStores{
		jobs:       make(map[string]*models.Job),
		matches:    make(map[string]*models.UserJobMatch),
		profiles:   make(map[string]*models.CVProfile),
		embeddings: make(map[string][]float32),
	}
}

func (m *memStores) JobStorage() interfaces.JobStorage             { return (*memJobStorage)(m) }
func (m *memStores) MatchStorage() interfaces.MatchStorage         { return (*memMatchStorage)(m) }
func (m *memStores) QueryStorage() interfaces.QueryStorage         { return (*memQueryStorage)(m) }
func (m *memStores) BackfillStorage() interfaces.BackfillStorage   { return nil }
func (m *memStores) ProfileStorage() interfaces.ProfileStorage     { return (*memProfileStorage)(m) }
func (m *memStores) EmbeddingStorage() interfaces.EmbeddingStorage { return (*memEmbeddingStorage)(m) }
func (m *memStores) KeyValueStorage() interfaces.KeyValueStorage   { return nil }
func (m *memStores) Close() error                                  { return nil }

type memJobStorage memStores

func (s *memJobStorage) UpsertJob(ctx context.Context, job *models.Job) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.ID, true, nil
}

func (s *memJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrNotFound)
	}
	return job, nil
}

func (s *memJobStorage) GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *memJobStorage) SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error {
	return nil
}

func (s *memJobStorage) MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error {
	return nil
}

func (s *memJobStorage) FindJobsForUser(ctx context.Context, userID string, filter interfaces.JobFilter, fn func(jobs []*models.Job) error) error {
	s.mu.Lock()
	matched := make(map[string]bool)
	for _, m := range s.matches {
		if m.UserID == userID {
			matched[m.JobID] = true
		}
	}
	var page []*models.Job
	for _, job := range s.jobs {
		if !matched[job.ID] && !job.DiscoveredDate.Before(filter.Since) {
			page = append(page, job)
		}
	}
	s.mu.Unlock()
	if len(page) == 0 {
		return nil
	}
	return fn(page)
}

type memMatchStorage memStores

func (s *memMatchStorage) UpsertUserJobMatch(ctx context.Context, match *models.UserJobMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.MatchUserJobKey(match.UserID, match.JobID)
	if existing, ok := s.matches[key]; ok {
		existing.SemanticScore = match.SemanticScore
		if match.MatchReasoning != "" {
			existing.MatchReasoning = match.MatchReasoning
		}
		if match.ClaudeScore != nil {
			existing.ClaudeScore = match.ClaudeScore
			existing.Priority = match.Priority
			existing.KeyAlignments = match.KeyAlignments
			existing.PotentialGaps = match.PotentialGaps
		}
		return nil
	}
	copied := *match
	s.matches[key] = &copied
	return nil
}

func (s *memMatchStorage) GetMatch(ctx context.Context, userID, jobID string) (*models.UserJobMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[models.MatchUserJobKey(userID, jobID)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return match, nil
}

func (s *memMatchStorage) ListMatches(ctx context.Context, userID string, limit, offset int) ([]*models.UserJobMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.UserJobMatch
	for _, m := range s.matches {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMatchStorage) UpdateStatus(ctx context.Context, userID, jobID, status string) error {
	return nil
}

func (s *memMatchStorage) MatchedJobIDs(ctx context.Context, userID string) (map[string]bool, error) {
	return nil, nil
}

type memQueryStorage memStores

func (s *memQueryStorage) ReplaceUserQueries(ctx context.Context, userID string, queries []*models.UserSearchQuery) error {
	return nil
}

func (s *memQueryStorage) GetUserQueries(ctx context.Context, userID string) ([]*models.UserSearchQuery, error) {
	return s.queries, nil
}

func (s *memQueryStorage) GetActiveQueries(ctx context.Context) ([]*models.UserSearchQuery, error) {
	return s.queries, nil
}

type memProfileStorage memStores

func (s *memProfileStorage) GetProfile(ctx context.Context, userID string) (*models.CVProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile for %s: %w", userID, interfaces.ErrNotFound)
	}
	return profile, nil
}

func (s *memProfileStorage) SaveProfile(ctx context.Context, profile *models.CVProfile) error {
	s.profiles[profile.UserID] = profile
	return nil
}

type memEmbeddingStorage memStores

func (s *memEmbeddingStorage) GetEmbedding(ctx context.Context, jobID, modelVersion string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.embeddings[models.EmbeddingKey(jobID, modelVersion)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return vec, nil
}

func (s *memEmbeddingStorage) SaveEmbedding(ctx context.Context, embedding *models.JobEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[models.EmbeddingKey(embedding.JobID, embedding.ModelVersion)] = embedding.Vector
	return nil
}

// stubEmbedder maps texts to fixed vectors by registered substring.
type stubEmbedder struct {
	mu       sync.Mutex
	byNeedle map[string][]float32
	fallback []float32
	gate     chan struct{} // when set, Warm blocks until closed
	batches  int
	embedded int
}

func (e *stubEmbedder) Warm(ctx context.Context) error {
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches++
	e.embedded += len(texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.fallback
		for needle, vec := range e.byNeedle {
			if needle != "" && strings.Contains(text, needle) {
				out[i] = vec
				break
			}
		}
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int       { return 3 }
func (e *stubEmbedder) ModelVersion() string { return "stub@3" }

func (e *stubEmbedder) embeddedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.embedded
}

func (e *stubEmbedder) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batches
}

// stubAnalyzer returns a fixed score per job ID. With degraded set it
// mimics a double parse failure: nil score, unavailable reasoning.
type stubAnalyzer struct {
	mu       sync.Mutex
	scores   map[string]int
	calls    []string
	gate     chan struct{} // when set, Analyze blocks until closed
	degraded bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, profile *models.CVProfile, job *models.Job) (*interfaces.AnalysisResult, error) {
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, job.ID)
	if a.degraded {
		return &interfaces.AnalysisResult{
			Score:     nil,
			Reasoning: "analysis unavailable",
		}, nil
	}
	score := a.scores[job.ID]
	return &interfaces.AnalysisResult{
		Score:     &score,
		Reasoning: "stub reasoning",
		Priority:  models.PriorityForScore(score),
	}, nil
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type engineFixture struct {
	stores   *memStores
	embedder *stubEmbedder
	analyzer *stubAnalyzer
	service  interfaces.MatchingService
}

func newEngineFixture(t *testing.T, embedder *stubEmbedder, analyzer *stubAnalyzer) *engineFixture {
	return newEngineFixtureTimeout(t, embedder, analyzer, "1m")
}

func newEngineFixtureTimeout(t *testing.T, embedder *stubEmbedder, analyzer *stubAnalyzer, softTimeout string) *engineFixture {
	t.Helper()
	logger := arbor.NewLogger()
	stores := newMemStores()
	stores.profiles["user-1"] = &models.CVProfile{
		UserID:          "user-1",
		TechnicalSkills: []string{"go", "kubernetes"},
		SemanticSummary: "backend engineer",
	}
	stores.queries = []*models.UserSearchQuery{
		{UserID: "user-1", TitleKeyword: "backend engineer", Location: "Berlin", IsActive: true},
	}
	config := &common.MatchingConfig{
		SemanticThreshold: 30,
		LLMThreshold:      50,
		ChunkMaxSize:      500,
		LLMWorkers:        2,
		RunSoftTimeout:    softTimeout,
	}
	svc := NewService(stores, embedder, analyzer, progress.NewService(logger), newTestBus(), config, 30, logger)
	return &engineFixture{stores: stores, embedder: embedder, analyzer: analyzer, service: svc}
}

// newTestBus is a no-op event bus; engine tests assert via ProgressService.
func newTestBus() interfaces.EventService { return &nopBus{} }

type nopBus struct{}

func (n *nopBus) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}
func (n *nopBus) Publish(ctx context.Context, event interfaces.Event) error     { return nil }
func (n *nopBus) PublishSync(ctx context.Context, event interfaces.Event) error { return nil }
func (n *nopBus) Close() error                                                  { return nil }

func waitTerminal(t *testing.T, svc interfaces.MatchingService, userID string) *models.ProgressEvent {
	t.Helper()
	var last *models.ProgressEvent
	require.Eventually(t, func() bool {
		last = svc.GetStatus(userID)
		return last.Stage.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond, "run did not reach a terminal stage")
	return last
}

func TestRunScoresFiltersAndAnalyzes(t *testing.T) {
	embedder := &stubEmbedder{
		byNeedle: map[string][]float32{
			"backend engineer": {1, 0, 0}, // profile and the close job
			"Data Scientist":   {0.6, 0.8, 0},
			"Florist":          {0, 1, 0},
		},
		fallback: []float32{1, 0, 0},
	}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_close": 90, "job_mid": 55}}
	fx := newEngineFixture(t, embedder, analyzer)

	today := time.Now().UTC()
	fx.stores.jobs["job_close"] = &models.Job{ID: "job_close", Title: "Senior backend engineer", DiscoveredDate: today}
	fx.stores.jobs["job_mid"] = &models.Job{ID: "job_mid", Title: "Data Scientist", DiscoveredDate: today}
	fx.stores.jobs["job_far"] = &models.Job{ID: "job_far", Title: "Florist", DiscoveredDate: today}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)

	final := waitTerminal(t, fx.service, "user-1")
	assert.Equal(t, models.StageDone, final.Stage)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 2, final.MatchesFound)
	assert.Equal(t, 2, final.JobsAnalyzed)

	// The orthogonal job never becomes a match.
	_, err = fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_far")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	closeMatch, err := fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_close")
	require.NoError(t, err)
	assert.Equal(t, 100, closeMatch.SemanticScore)
	require.NotNil(t, closeMatch.ClaudeScore)
	assert.Equal(t, 90, *closeMatch.ClaudeScore)
	assert.Equal(t, models.PriorityHigh, closeMatch.Priority)

	mid, err := fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_mid")
	require.NoError(t, err)
	assert.Equal(t, 60, mid.SemanticScore)
	require.NotNil(t, mid.ClaudeScore)
	assert.Equal(t, 55, *mid.ClaudeScore)
}

func TestSemanticSurvivorBelowAnalysisThresholdIsSavedUnanalyzed(t *testing.T) {
	embedder := &stubEmbedder{
		byNeedle: map[string][]float32{
			"backend engineer": {1, 0, 0},
			"Support Agent":    {0.4, 0.9165, 0}, // cosine 0.4 -> score 40
		},
		fallback: []float32{1, 0, 0},
	}
	analyzer := &stubAnalyzer{scores: map[string]int{}}
	fx := newEngineFixture(t, embedder, analyzer)

	fx.stores.jobs["job_weak"] = &models.Job{ID: "job_weak", Title: "Support Agent", DiscoveredDate: time.Now().UTC()}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, fx.service, "user-1")

	assert.Equal(t, models.StageDone, final.Stage)
	assert.Equal(t, 1, final.MatchesFound)
	assert.Equal(t, 0, final.JobsAnalyzed)
	assert.Equal(t, 0, analyzer.callCount())

	match, err := fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_weak")
	require.NoError(t, err)
	assert.Equal(t, 40, match.SemanticScore)
	assert.Nil(t, match.ClaudeScore)
}

func TestSecondStartWhileActiveIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}, gate: gate}
	analyzer := &stubAnalyzer{scores: map[string]int{}}
	fx := newEngineFixture(t, embedder, analyzer)

	first, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StageInitializing, first.Stage)

	second, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	assert.False(t, second.Stage.IsTerminal())

	close(gate)
	waitTerminal(t, fx.service, "user-1")
	// Only the first call started a run.
	assert.Equal(t, 1, embedder.batchCount()) // profile embedding only, no jobs stored
}

func TestCancelStopsRunCooperatively(t *testing.T) {
	gate := make(chan struct{})
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}, gate: gate}
	analyzer := &stubAnalyzer{scores: map[string]int{}}
	fx := newEngineFixture(t, embedder, analyzer)

	fx.stores.jobs["job_1"] = &models.Job{ID: "job_1", Title: "backend engineer", DiscoveredDate: time.Now().UTC()}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)

	assert.True(t, fx.service.Cancel("user-1"))
	close(gate)

	final := waitTerminal(t, fx.service, "user-1")
	assert.Equal(t, models.StageCancelled, final.Stage)
	assert.Equal(t, "cancelled", final.Status)
	assert.Equal(t, 0, analyzer.callCount())

	// No active run left.
	assert.False(t, fx.service.Cancel("user-1"))
}

func TestStartWithoutProfileFails(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	fx := newEngineFixture(t, embedder, &stubAnalyzer{scores: map[string]int{}})
	delete(fx.stores.profiles, "user-1")

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCachedEmbeddingsAreNotRecomputed(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_cached": 70}}
	fx := newEngineFixture(t, embedder, analyzer)

	fx.stores.jobs["job_cached"] = &models.Job{ID: "job_cached", Title: "backend engineer", DiscoveredDate: time.Now().UTC()}
	fx.stores.embeddings[models.EmbeddingKey("job_cached", "stub@3")] = []float32{1, 0, 0}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	waitTerminal(t, fx.service, "user-1")

	// Only the profile text went through the embedder.
	assert.Equal(t, 1, embedder.embeddedCount())
}

func TestNewEmbeddingsAreCached(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_new": 70}}
	fx := newEngineFixture(t, embedder, analyzer)

	fx.stores.jobs["job_new"] = &models.Job{ID: "job_new", Title: "backend engineer", DiscoveredDate: time.Now().UTC()}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	waitTerminal(t, fx.service, "user-1")

	cached, ok := fx.stores.embeddings[models.EmbeddingKey("job_new", "stub@3")]
	require.True(t, ok, "job vector should be written back to the cache")
	assert.Equal(t, []float32{1, 0, 0}, cached)
}

func TestLatestDayOnlyRestrictsToNewestChunk(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_today": 80, "job_old": 80}}
	fx := newEngineFixture(t, embedder, analyzer)

	now := time.Now().UTC()
	fx.stores.jobs["job_today"] = &models.Job{ID: "job_today", Title: "backend engineer", DiscoveredDate: now}
	fx.stores.jobs["job_old"] = &models.Job{ID: "job_old", Title: "backend engineer", DiscoveredDate: now.AddDate(0, 0, -3)}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{LatestDayOnly: true})
	require.NoError(t, err)
	final := waitTerminal(t, fx.service, "user-1")

	assert.Equal(t, models.StageDone, final.Stage)
	assert.Equal(t, 1, final.MatchesFound)

	_, err = fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_today")
	assert.NoError(t, err)
	_, err = fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_old")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestDegradedAnalysisPersistsReasoningWithoutScore(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	analyzer := &stubAnalyzer{degraded: true}
	fx := newEngineFixture(t, embedder, analyzer)

	fx.stores.jobs["job_degraded"] = &models.Job{ID: "job_degraded", Title: "backend engineer", DiscoveredDate: time.Now().UTC()}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, fx.service, "user-1")
	require.Equal(t, models.StageDone, final.Stage)
	assert.Equal(t, 1, analyzer.callCount())

	// The semantic match survives with the unavailable marker, no score.
	match, err := fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_degraded")
	require.NoError(t, err)
	assert.Equal(t, 100, match.SemanticScore)
	assert.Nil(t, match.ClaudeScore)
	assert.Equal(t, "analysis unavailable", match.MatchReasoning)
}

func TestSoftTimeoutWarnsAndRunContinues(t *testing.T) {
	gate := make(chan struct{})
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}, gate: gate}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_slow": 80}}
	fx := newEngineFixtureTimeout(t, embedder, analyzer, "20ms")

	fx.stores.jobs["job_slow"] = &models.Job{ID: "job_slow", Title: "backend engineer", DiscoveredDate: time.Now().UTC()}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{})
	require.NoError(t, err)

	// The deadline passes while the model is still loading; the run warns
	// instead of dying.
	require.Eventually(t, func() bool {
		ev := fx.service.GetStatus("user-1")
		return ev != nil && strings.Contains(ev.Message, "soft timeout")
	}, 5*time.Second, 10*time.Millisecond, "overrun warning never surfaced")

	close(gate)
	final := waitTerminal(t, fx.service, "user-1")
	assert.Equal(t, models.StageDone, final.Stage)
	assert.Equal(t, 1, final.MatchesFound)
	assert.Equal(t, 1, final.JobsAnalyzed)
}

func TestForceReanalyzeRefreshesExistingMatches(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0, 0}}
	analyzer := &stubAnalyzer{scores: map[string]int{"job_seen": 92}}
	fx := newEngineFixture(t, embedder, analyzer)

	now := time.Now().UTC()
	fx.stores.jobs["job_seen"] = &models.Job{ID: "job_seen", Title: "backend engineer", DiscoveredDate: now}
	stale := 40
	fx.stores.matches[models.MatchUserJobKey("user-1", "job_seen")] = &models.UserJobMatch{
		UserID:        "user-1",
		JobID:         "job_seen",
		SemanticScore: 88,
		ClaudeScore:   &stale,
		Status:        models.MatchStatusShortlisted,
	}

	_, err := fx.service.StartMatching(context.Background(), "user-1", interfaces.MatchOptions{ForceReanalyze: true})
	require.NoError(t, err)
	final := waitTerminal(t, fx.service, "user-1")
	require.Equal(t, models.StageDone, final.Stage)

	match, err := fx.stores.MatchStorage().GetMatch(context.Background(), "user-1", "job_seen")
	require.NoError(t, err)
	require.NotNil(t, match.ClaudeScore)
	assert.Equal(t, 92, *match.ClaudeScore)
	// A user-managed status survives the refresh.
	assert.Equal(t, models.MatchStatusShortlisted, match.Status)
}
