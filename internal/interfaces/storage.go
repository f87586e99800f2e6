package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// ErrStore wraps persistent storage failures after retries are exhausted.
// For matching runs a store error is fatal to the run.
var ErrStore = errors.New("store error")

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// JobFilter narrows FindJobsForUser to the user's hard constraints.
type JobFilter struct {
	Since            time.Time
	Locations        []string // Substring match on city, or country match when remote accepted
	WorkArrangements []string // Accepted set; jobs with unknown arrangement pass
	AcceptsRemote    bool
	Countries        []string // Lowercased ISO-3166-1 alpha-2 derived from locations
}

// JobStorage persists global job rows.
type JobStorage interface {
	// UpsertJob inserts a new job or merges into the existing row keyed by
	// (source, external_id). Existing AI fields are never overwritten with
	// absent ones. Returns the surrogate job ID and whether a row was inserted.
	UpsertJob(ctx context.Context, job *models.Job) (jobID string, inserted bool, err error)

	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// GetJobsMissingAI returns jobs lacking AI metadata that are outside the
	// enrichment cool-down window, oldest discovered first.
	GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error)

	// SaveAIMetadata atomically merges enrichment output into one job row.
	SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error

	// MarkEnrichFailed stamps the cool-down clock after a double parse failure.
	MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error

	// FindJobsForUser pages through jobs matching the filter that have no
	// UserJobMatch row for the user yet. fn is invoked once per page; the
	// full job set is never materialized.
	FindJobsForUser(ctx context.Context, userID string, filter JobFilter, fn func(jobs []*models.Job) error) error
}

// MatchStorage persists per-user match rows.
type MatchStorage interface {
	// UpsertUserJobMatch inserts or updates the row keyed by (user_id, job_id).
	// Score fields are updated on conflict; a user-managed status is never
	// downgraded.
	UpsertUserJobMatch(ctx context.Context, match *models.UserJobMatch) error

	GetMatch(ctx context.Context, userID, jobID string) (*models.UserJobMatch, error)

	// ListMatches returns a user's matches ordered by score descending.
	ListMatches(ctx context.Context, userID string, limit, offset int) ([]*models.UserJobMatch, error)

	// UpdateStatus applies a user action (viewed, shortlisted, applied, hidden).
	UpdateStatus(ctx context.Context, userID, jobID, status string) error

	// MatchedJobIDs returns the set of job IDs already matched for the user.
	MatchedJobIDs(ctx context.Context, userID string) (map[string]bool, error)
}

// QueryStorage persists user search queries.
type QueryStorage interface {
	// ReplaceUserQueries atomically swaps the user's active query rows.
	ReplaceUserQueries(ctx context.Context, userID string, queries []*models.UserSearchQuery) error

	GetUserQueries(ctx context.Context, userID string) ([]*models.UserSearchQuery, error)

	// GetActiveQueries returns all active rows across users for the collector.
	GetActiveQueries(ctx context.Context) ([]*models.UserSearchQuery, error)
}

// BackfillStorage records which combinations have been backfilled globally.
type BackfillStorage interface {
	IsCombinationBackfilled(ctx context.Context, combo models.Combination) (bool, error)
	MarkBackfilled(ctx context.Context, combo models.Combination, jobsFound int) error
}

// ProfileStorage persists parsed CV profiles.
type ProfileStorage interface {
	GetProfile(ctx context.Context, userID string) (*models.CVProfile, error)
	SaveProfile(ctx context.Context, profile *models.CVProfile) error
}

// EmbeddingStorage caches job vectors keyed by (job_id, model_version).
type EmbeddingStorage interface {
	GetEmbedding(ctx context.Context, jobID, modelVersion string) ([]float32, error)
	SaveEmbedding(ctx context.Context, embedding *models.JobEmbedding) error
}

// KeyValueStorage provides generic key/value persistence (API keys).
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager aggregates all storage interfaces over one connection.
type StorageManager interface {
	JobStorage() JobStorage
	MatchStorage() MatchStorage
	QueryStorage() QueryStorage
	BackfillStorage() BackfillStorage
	ProfileStorage() ProfileStorage
	EmbeddingStorage() EmbeddingStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
