package enrichment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
	"github.com/Inclusist/job-monitor-sub000/internal/services/llm"
)

// Service derives AI metadata for jobs that lack it. Enrichment is
// idempotent: an already-enriched job is never re-sent, and a job whose
// response failed to parse twice sits out a cool-down before retry.
type Service struct {
	jobs    interfaces.JobStorage
	llm     interfaces.LLMService
	workers int
	logger  arbor.ILogger
}

// NewService creates the enrichment service.
func NewService(jobs interfaces.JobStorage, llmService interfaces.LLMService, workers int, logger arbor.ILogger) interfaces.EnrichmentService {
	if workers <= 0 {
		workers = common.DefaultEnrichWorkers
	}
	return &Service{
		jobs:    jobs,
		llm:     llmService,
		workers: workers,
		logger:  logger,
	}
}

// EnrichJob populates AI fields on a single job. A malformed response gets
// one fresh request; a second parse failure stamps the cool-down clock.
func (s *Service) EnrichJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if !job.NeedsEnrichment(time.Now().UTC(), common.DefaultEnrichCooldown) {
		return nil
	}

	messages := buildEnrichmentMessages(job)

	var payload enrichmentPayload
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		response, err := s.llm.ChatJSON(ctx, messages, enrichmentSchema)
		if err != nil {
			return fmt.Errorf("enrichment request failed for job %s: %w", job.ID, err)
		}
		parseErr = llm.ParseJSON(response, &payload)
		if parseErr == nil {
			break
		}
		s.logger.Warn().
			Err(parseErr).
			Str("job_id", job.ID).
			Int("attempt", attempt+1).
			Msg("Enrichment response failed to parse")
	}
	if parseErr != nil {
		if markErr := s.jobs.MarkEnrichFailed(ctx, job.ID, time.Now().UTC()); markErr != nil {
			s.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("Failed to stamp enrichment cool-down")
		}
		return fmt.Errorf("enrichment response unparseable for job %s: %w", job.ID, parseErr)
	}

	meta := payload.toMetadata()
	if err := s.jobs.SaveAIMetadata(ctx, job.ID, meta); err != nil {
		return fmt.Errorf("failed to save enrichment for job %s: %w", job.ID, err)
	}
	job.MergeAI(meta)

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("key_skills", len(meta.KeySkills)).
		Str("work_arrangement", meta.WorkArrangement).
		Msg("Job enriched")
	return nil
}

// EnrichPending enriches up to budget jobs with a bounded worker pool.
// Per-job failures are logged and skipped; the cycle always drains.
func (s *Service) EnrichPending(ctx context.Context, budget int) (int, error) {
	if budget <= 0 {
		budget = common.DefaultEnrichPerTick
	}

	pending, err := s.jobs.GetJobsMissingAI(ctx, budget)
	if err != nil {
		return 0, fmt.Errorf("failed to load enrichment backlog: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	s.logger.Info().
		Int("pending", len(pending)).
		Int("workers", s.workers).
		Msg("Enriching pending jobs")

	jobCh := make(chan *models.Job)
	var enriched int64
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if err := s.EnrichJob(ctx, job); err != nil {
					s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Enrichment failed")
					continue
				}
				atomic.AddInt64(&enriched, 1)
			}
		}()
	}

	for _, job := range pending {
		select {
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return int(atomic.LoadInt64(&enriched)), ctx.Err()
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()

	return int(atomic.LoadInt64(&enriched)), nil
}
