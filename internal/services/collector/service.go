package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// AdapterRegistry is the slice of the source registry the collector needs.
type AdapterRegistry interface {
	Eligible(now time.Time) []interfaces.SourceAdapter
	DisableUntil(name string, until time.Time)
}

// CycleSummary is the payload published on collection.completed.
type CycleSummary struct {
	Searches     int           `json:"searches"`
	JobsFound    int           `json:"jobs_found"`
	JobsInserted int           `json:"jobs_inserted"`
	JobsEnriched int           `json:"jobs_enriched"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Service runs the scheduled collection cycle: search every tracked
// combination across eligible adapters, upsert the results into the
// global job pool, then enrich a bounded batch of the backlog.
type Service struct {
	jobs     interfaces.JobStorage
	queries  interfaces.QueryStorage
	registry AdapterRegistry
	enricher interfaces.EnrichmentService
	events   interfaces.EventService
	config   *common.CollectorConfig
	logger   arbor.ILogger

	mu sync.Mutex // one cycle at a time
}

// NewService creates the collector.
func NewService(
	jobs interfaces.JobStorage,
	queries interfaces.QueryStorage,
	registry AdapterRegistry,
	enricher interfaces.EnrichmentService,
	events interfaces.EventService,
	config *common.CollectorConfig,
	logger arbor.ILogger,
) interfaces.CollectorService {
	return &Service{
		jobs:     jobs,
		queries:  queries,
		registry: registry,
		enricher: enricher,
		events:   events,
		config:   config,
		logger:   logger,
	}
}

// searchTuple is one distinct (keyword, location) pair across all users,
// with the union of arrangement hints from the queries that produced it.
type searchTuple struct {
	Keyword  string
	Location string
	Hints    []string
}

// RunCycle executes one collection cycle. Overlapping invocations are
// skipped, not queued.
func (s *Service) RunCycle(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.logger.Warn().Msg("Collection cycle already running, skipping")
		return nil
	}
	defer s.mu.Unlock()

	started := time.Now().UTC()
	summary := CycleSummary{StartedAt: started}

	tuples, err := s.distinctTuples(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active queries: %w", err)
	}
	if len(tuples) == 0 {
		s.logger.Info().Msg("No active search queries, collection cycle is a no-op")
		return nil
	}

	// The window covers one interval plus grace so jobs posted right after
	// the previous tick are not lost to clock skew.
	windowHours := (s.config.IntervalMinutes + s.config.GraceMinutes + 59) / 60
	if windowHours < 1 {
		windowHours = 1
	}

	adapters := s.registry.Eligible(started)
	s.logger.Info().
		Int("tuples", len(tuples)).
		Int("adapters", len(adapters)).
		Int("window_hours", windowHours).
		Msg("Collection cycle started")

	for _, adapter := range adapters {
		if err := s.collectFromAdapter(ctx, adapter, tuples, windowHours, &summary); err != nil {
			return err
		}
	}

	if s.config.EnrichPerTick > 0 {
		enriched, err := s.enricher.EnrichPending(ctx, s.config.EnrichPerTick)
		summary.JobsEnriched = enriched
		if err != nil {
			// Enrichment is best effort per tick; the backlog catches up later.
			s.logger.Warn().Err(err).Int("enriched", enriched).Msg("Enrichment pass ended with errors")
		}
	}

	summary.Duration = time.Since(started)
	s.logger.Info().
		Int("searches", summary.Searches).
		Int("jobs_found", summary.JobsFound).
		Int("jobs_inserted", summary.JobsInserted).
		Int("jobs_enriched", summary.JobsEnriched).
		Str("duration", summary.Duration.Round(time.Millisecond).String()).
		Msg("Collection cycle completed")

	if s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventCollectionCompleted,
			Payload: summary,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish collection.completed")
		}
	}
	return nil
}

// collectFromAdapter runs every tuple against one adapter. A rate limit
// skips the adapter's remaining tuples for this cycle; quota exhaustion
// additionally disables the adapter for its quota period.
func (s *Service) collectFromAdapter(ctx context.Context, adapter interfaces.SourceAdapter, tuples []searchTuple, windowHours int, summary *CycleSummary) error {
	policy := adapter.QuotaPolicy()

	for _, tuple := range tuples {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		criteria := models.SearchCriteria{
			Keyword:             tuple.Keyword,
			Location:            tuple.Location,
			PostedWithinHours:   windowHours,
			MaxResults:          policy.ResultsPerRequestMax,
			WorkArrangementHint: tuple.Hints,
		}
		result, err := adapter.Search(ctx, criteria)
		summary.Searches++
		if err != nil {
			var srcErr *models.SourceError
			if errors.As(err, &srcErr) {
				switch srcErr.Kind {
				case models.SourceErrorRateLimited:
					s.logger.Warn().
						Str("source", adapter.Name()).
						Msg("Source rate limited, skipping its remaining tuples this cycle")
					return nil
				case models.SourceErrorQuotaExhausted:
					until := time.Now().Add(policy.Period)
					s.registry.DisableUntil(adapter.Name(), until)
					return nil
				}
			}
			s.logger.Warn().
				Err(err).
				Str("source", adapter.Name()).
				Str("keyword", tuple.Keyword).
				Str("location", tuple.Location).
				Msg("Search failed, continuing with next tuple")
			continue
		}

		for _, warning := range result.Warnings {
			s.logger.Warn().Str("source", adapter.Name()).Msg(warning)
		}

		summary.JobsFound += len(result.Jobs)
		for _, raw := range result.Jobs {
			job := jobFromRaw(adapter.Name(), raw)
			_, inserted, err := s.jobs.UpsertJob(ctx, job)
			if err != nil {
				if errors.Is(err, interfaces.ErrStore) {
					return fmt.Errorf("collection cycle aborted: %w", err)
				}
				s.logger.Warn().Err(err).
					Str("source", adapter.Name()).
					Str("external_id", raw.ExternalID).
					Msg("Failed to upsert job, skipping")
				continue
			}
			if inserted {
				summary.JobsInserted++
			}
		}
	}
	return nil
}

// distinctTuples collapses all users' active queries to unique
// (keyword, location) pairs so shared searches run once per cycle.
func (s *Service) distinctTuples(ctx context.Context) ([]searchTuple, error) {
	queries, err := s.queries.GetActiveQueries(ctx)
	if err != nil {
		return nil, err
	}

	type tupleAgg struct {
		tuple searchTuple
		hints map[string]bool
	}
	byKey := make(map[string]*tupleAgg)
	var keys []string
	for _, q := range queries {
		if q.TitleKeyword == "" {
			continue
		}
		key := models.Combination{TitleKeyword: q.TitleKeyword, Location: q.Location}.Key()
		agg, ok := byKey[key]
		if !ok {
			agg = &tupleAgg{
				tuple: searchTuple{Keyword: q.TitleKeyword, Location: q.Location},
				hints: make(map[string]bool),
			}
			byKey[key] = agg
			keys = append(keys, key)
		}
		for _, hint := range q.WorkArrangements {
			agg.hints[hint] = true
		}
	}

	sort.Strings(keys)
	tuples := make([]searchTuple, 0, len(keys))
	for _, key := range keys {
		agg := byKey[key]
		for hint := range agg.hints {
			agg.tuple.Hints = append(agg.tuple.Hints, hint)
		}
		sort.Strings(agg.tuple.Hints)
		tuples = append(tuples, agg.tuple)
	}
	return tuples, nil
}

// jobFromRaw converts an adapter result into a global job row.
func jobFromRaw(source string, raw models.RawJob) *models.Job {
	return &models.Job{
		Source:      source,
		ExternalID:  raw.ExternalID,
		Title:       raw.Title,
		Company:     raw.Company,
		Location:    raw.Location,
		Country:     raw.Country,
		Description: raw.Description,
		URL:         raw.URL,
		PostedDate:  raw.PostedDate,
	}
}
