package interfaces

import (
	"context"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// MatchOptions controls a matching run.
type MatchOptions struct {
	ForceReanalyze bool `json:"force_reanalyze"` // Re-run stage 2 on already-analyzed rows
	LatestDayOnly  bool `json:"latest_day_only"` // Restrict to the newest chunk
}

// MatchingService orchestrates the per-user two-stage pipeline.
type MatchingService interface {
	// StartMatching launches a run in the background and returns immediately.
	// A second call while a run is active is a no-op returning the current
	// progress event.
	StartMatching(ctx context.Context, userID string, opts MatchOptions) (*models.ProgressEvent, error)

	// GetStatus returns the latest progress event for the user.
	GetStatus(userID string) *models.ProgressEvent

	// Cancel requests a cooperative cancel at the next sub-step boundary.
	// In-flight LLM requests complete and their results are persisted.
	Cancel(userID string) bool

	// Shutdown cancels all active runs and waits for them to stop.
	Shutdown(ctx context.Context)
}

// EnrichmentService derives AI metadata for jobs that lack it.
type EnrichmentService interface {
	// EnrichJob populates AI fields on a single job. Calling it on an
	// already-enriched job is a no-op.
	EnrichJob(ctx context.Context, job *models.Job) error

	// EnrichPending enriches up to budget jobs with a bounded worker pool.
	// Returns the number of jobs successfully enriched.
	EnrichPending(ctx context.Context, budget int) (int, error)
}

// AnalysisResult is the stage-2 output for one (user, job) pair.
type AnalysisResult struct {
	Score      *int     `json:"score"` // nil when analysis was unavailable
	Reasoning  string   `json:"reasoning"`
	Alignments []string `json:"alignments"`
	Gaps       []string `json:"gaps"`
	Priority   string   `json:"priority"`
}

// AnalyzerService performs the expensive per-pair LLM analysis.
type AnalyzerService interface {
	Analyze(ctx context.Context, profile *models.CVProfile, job *models.Job) (*AnalysisResult, error)
}

// ProgressService is the per-user progress broker. Only the latest event
// per user is retained; state resets to idle on process restart.
type ProgressService interface {
	Set(userID string, event *models.ProgressEvent)
	Get(userID string) *models.ProgressEvent
	Clear(userID string)
}

// CollectorService runs one collection cycle: search all tracked
// combinations over eligible adapters, upsert, then enrich a budget.
type CollectorService interface {
	RunCycle(ctx context.Context) error
}

// BackfillPlanner schedules one-shot historical fetches for combinations
// that have never been backfilled globally.
type BackfillPlanner interface {
	PlanForUser(ctx context.Context, userID string) error
}

// QueryService registers user search queries and triggers backfill.
type QueryService interface {
	RegisterUserQueries(ctx context.Context, userID string, titles, locations, arrangements []string) error
	LoadSeedFiles(ctx context.Context, dir string) error
}

// SchedulerService drives recurring background jobs.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool

	// TriggerCollectionNow runs one collection cycle out of schedule.
	TriggerCollectionNow() error
}
