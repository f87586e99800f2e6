package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// findJobsPageSize bounds how many jobs are materialized per callback page.
const findJobsPageSize = 200

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertJob inserts a new job or merges into the row keyed by
// (source, external_id). Merging fills fields the existing row lacks;
// existing AI fields are never overwritten.
func (s *JobStorage) UpsertJob(ctx context.Context, job *models.Job) (string, bool, error) {
	if job == nil {
		return "", false, fmt.Errorf("job is required")
	}
	if job.Source == "" || job.ExternalID == "" {
		return "", false, fmt.Errorf("job source and external_id are required")
	}
	job.SourceKey = models.JobSourceKey(job.Source, job.ExternalID)

	var jobID string
	var inserted bool

	err := withRetry(ctx, s.logger, "upsert_job", func() error {
		existing, err := s.findBySourceKey(job.SourceKey)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing == nil {
			fresh := *job
			if fresh.ID == "" {
				fresh.ID = common.NewJobID()
			}
			if fresh.DiscoveredDate.IsZero() {
				fresh.DiscoveredDate = now
			}
			fresh.Enriched = fresh.AI != nil
			fresh.CreatedAt = now
			fresh.UpdatedAt = now

			if err := s.db.Store().Insert(fresh.ID, &fresh); err != nil {
				if err == badgerhold.ErrUniqueExists {
					// Lost a race with a concurrent insert for the same
					// source key; merge into the winner instead.
					winner, ferr := s.findBySourceKey(job.SourceKey)
					if ferr != nil {
						return ferr
					}
					if winner == nil {
						return fmt.Errorf("job vanished after unique conflict: %s", job.SourceKey)
					}
					existing = winner
				} else {
					return fmt.Errorf("failed to insert job: %w", err)
				}
			} else {
				jobID = fresh.ID
				inserted = true
				return nil
			}
		}

		changed := mergeJobFields(existing, job)
		if existing.MergeAI(job.AI) {
			changed = true
		}
		existing.Enriched = existing.AI != nil
		if changed {
			existing.UpdatedAt = now
			if err := s.db.Store().Update(existing.ID, existing); err != nil {
				return fmt.Errorf("failed to update job: %w", err)
			}
		}
		jobID = existing.ID
		inserted = false
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return jobID, inserted, nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: job %s", interfaces.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobsMissingAI returns unenriched jobs outside the failure cool-down,
// oldest discovered first so the backlog drains in order.
func (s *JobStorage) GetJobsMissingAI(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = common.DefaultEnrichPerTick
	}

	var candidates []models.Job
	query := badgerhold.Where("Enriched").Eq(false).SortBy("DiscoveredDate")
	if err := s.db.Store().Find(&candidates, query); err != nil {
		return nil, fmt.Errorf("failed to query unenriched jobs: %w", err)
	}

	now := time.Now().UTC()
	result := make([]*models.Job, 0, limit)
	for i := range candidates {
		j := candidates[i]
		if !j.NeedsEnrichment(now, common.DefaultEnrichCooldown) {
			continue
		}
		result = append(result, &j)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// SaveAIMetadata merges enrichment output into the job row. Fields already
// present on the row win over incoming ones.
func (s *JobStorage) SaveAIMetadata(ctx context.Context, jobID string, meta *models.AIMetadata) error {
	if meta == nil {
		return fmt.Errorf("metadata is required")
	}
	return withRetry(ctx, s.logger, "save_ai_metadata", func() error {
		var job models.Job
		if err := s.db.Store().Get(jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("%w: job %s", interfaces.ErrNotFound, jobID)
			}
			return fmt.Errorf("failed to get job: %w", err)
		}
		if !job.MergeAI(meta) {
			return nil
		}
		job.Enriched = true
		job.EnrichFailedAt = nil
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().Update(jobID, &job); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}
		return nil
	})
}

// MarkEnrichFailed stamps the cool-down clock after a double parse failure.
func (s *JobStorage) MarkEnrichFailed(ctx context.Context, jobID string, at time.Time) error {
	return withRetry(ctx, s.logger, "mark_enrich_failed", func() error {
		var job models.Job
		if err := s.db.Store().Get(jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("%w: job %s", interfaces.ErrNotFound, jobID)
			}
			return fmt.Errorf("failed to get job: %w", err)
		}
		job.EnrichFailedAt = &at
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().Update(jobID, &job); err != nil {
			return fmt.Errorf("failed to mark enrich failure: %w", err)
		}
		return nil
	})
}

// FindJobsForUser pages through candidate jobs for a matching run: filtered
// by the user's hard constraints, excluding jobs already matched for the
// user, newest discovered first. fn is invoked once per page so the full
// candidate set is never held in memory.
func (s *JobStorage) FindJobsForUser(ctx context.Context, userID string, filter interfaces.JobFilter, fn func(jobs []*models.Job) error) error {
	matched, err := s.matchedJobIDs(userID)
	if err != nil {
		return err
	}

	offset := 0
	page := make([]*models.Job, 0, findJobsPageSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := badgerhold.Where("DiscoveredDate").Ge(filter.Since).
			SortBy("DiscoveredDate").Reverse().
			Skip(offset).Limit(findJobsPageSize)

		var batch []models.Job
		if err := s.db.Store().Find(&batch, query); err != nil {
			return fmt.Errorf("%w: failed to page jobs: %v", interfaces.ErrStore, err)
		}
		if len(batch) == 0 {
			return nil
		}
		offset += len(batch)

		page = page[:0]
		for i := range batch {
			j := batch[i]
			if matched[j.ID] {
				continue
			}
			if !jobMatchesFilter(&j, filter) {
				continue
			}
			page = append(page, &j)
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
	}
}

func (s *JobStorage) findBySourceKey(sourceKey string) (*models.Job, error) {
	var rows []models.Job
	if err := s.db.Store().Find(&rows, badgerhold.Where("SourceKey").Eq(sourceKey)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up source key: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *JobStorage) matchedJobIDs(userID string) (map[string]bool, error) {
	var matches []models.UserJobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("UserID").Eq(userID)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("%w: failed to load matched job ids: %v", interfaces.ErrStore, err)
	}
	ids := make(map[string]bool, len(matches))
	for i := range matches {
		ids[matches[i].JobID] = true
	}
	return ids, nil
}

// mergeJobFields fills core fields the existing row lacks and refreshes
// volatile ones. Returns true if anything changed.
func mergeJobFields(dst, src *models.Job) bool {
	changed := false
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		changed = true
	}
	if dst.Company == "" && src.Company != "" {
		dst.Company = src.Company
		changed = true
	}
	if dst.Location == "" && src.Location != "" {
		dst.Location = src.Location
		changed = true
	}
	if dst.Country == "" && src.Country != "" {
		dst.Country = src.Country
		changed = true
	}
	if dst.URL == "" && src.URL != "" {
		dst.URL = src.URL
		changed = true
	}
	if dst.PostedDate.IsZero() && !src.PostedDate.IsZero() {
		dst.PostedDate = src.PostedDate
		changed = true
	}
	// A longer description from another source supersedes a stub.
	if len(src.Description) > len(dst.Description) {
		dst.Description = src.Description
		changed = true
	}
	return changed
}

// jobMatchesFilter applies the user's hard constraints. Jobs missing the
// attribute a constraint targets pass rather than being silently dropped.
func jobMatchesFilter(job *models.Job, filter interfaces.JobFilter) bool {
	isRemote := job.AI != nil && job.AI.WorkArrangement == models.ArrangementRemote

	if len(filter.WorkArrangements) > 0 && job.AI != nil && job.AI.WorkArrangement != "" {
		found := false
		for _, wa := range filter.WorkArrangements {
			if strings.EqualFold(wa, job.AI.WorkArrangement) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Locations) > 0 {
		if locationMatches(job, filter.Locations) {
			return true
		}
		if isRemote && filter.AcceptsRemote && countryMatches(job, filter.Countries) {
			return true
		}
		return false
	}
	return true
}

func locationMatches(job *models.Job, locations []string) bool {
	if job.Location == "" {
		return true
	}
	haystack := strings.ToLower(job.Location)
	for _, loc := range locations {
		if strings.Contains(haystack, strings.ToLower(strings.TrimSpace(loc))) {
			return true
		}
	}
	return false
}

func countryMatches(job *models.Job, countries []string) bool {
	if job.Country == "" || len(countries) == 0 {
		return true
	}
	for _, c := range countries {
		if strings.EqualFold(c, job.Country) {
			return true
		}
	}
	return false
}
