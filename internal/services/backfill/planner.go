package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// AdapterRegistry is the slice of the source registry the planner needs.
type AdapterRegistry interface {
	Eligible(now time.Time) []interfaces.SourceAdapter
	DisableUntil(name string, until time.Time)
}

// Planner runs one-shot historical fetches for search combinations that
// have never been backfilled. The backfill ledger is global: once any
// user's registration triggers a combination's backfill, later users
// registering the same combination reuse the already-collected jobs.
type Planner struct {
	jobs     interfaces.JobStorage
	queries  interfaces.QueryStorage
	ledger   interfaces.BackfillStorage
	registry AdapterRegistry
	events   interfaces.EventService
	days     int
	logger   arbor.ILogger
}

// NewPlanner creates the backfill planner.
func NewPlanner(
	jobs interfaces.JobStorage,
	queries interfaces.QueryStorage,
	ledger interfaces.BackfillStorage,
	registry AdapterRegistry,
	events interfaces.EventService,
	backfillDays int,
	logger arbor.ILogger,
) interfaces.BackfillPlanner {
	if backfillDays <= 0 {
		backfillDays = common.DefaultBackfillDays
	}
	return &Planner{
		jobs:     jobs,
		queries:  queries,
		ledger:   ledger,
		registry: registry,
		events:   events,
		days:     backfillDays,
		logger:   logger,
	}
}

// PlanForUser backfills every not-yet-backfilled combination derived from
// the user's queries. Combinations that fail on all sources are left
// unmarked so a later registration retries them.
func (p *Planner) PlanForUser(ctx context.Context, userID string) error {
	userQueries, err := p.queries.GetUserQueries(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load queries for user %s: %w", userID, err)
	}

	combos := combinationsFromQueries(userQueries)
	if len(combos) == 0 {
		return nil
	}

	var pending []models.Combination
	for _, combo := range combos {
		done, err := p.ledger.IsCombinationBackfilled(ctx, combo)
		if err != nil {
			return fmt.Errorf("failed to check backfill ledger: %w", err)
		}
		if !done {
			pending = append(pending, combo)
		}
	}

	p.logger.Info().
		Str("user_id", userID).
		Int("combinations", len(combos)).
		Int("pending", len(pending)).
		Msg("Backfill plan computed")

	for _, combo := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.backfillCombination(ctx, combo); err != nil {
			if errors.Is(err, interfaces.ErrStore) {
				return err
			}
			p.logger.Warn().Err(err).Str("combination", combo.Key()).Msg("Backfill failed, will retry on next registration")
		}
	}
	return nil
}

// backfillCombination searches the full historical window on every
// eligible source and marks the ledger only when at least one source
// delivered a result set.
func (p *Planner) backfillCombination(ctx context.Context, combo models.Combination) error {
	criteria := models.SearchCriteria{
		Keyword:           combo.TitleKeyword,
		Location:          combo.Location,
		PostedWithinHours: p.days * 24,
	}
	if combo.WorkArrangement != "" {
		criteria.WorkArrangementHint = []string{combo.WorkArrangement}
	}

	jobsFound := 0
	succeeded := false
	for _, adapter := range p.registry.Eligible(time.Now()) {
		criteria.MaxResults = adapter.QuotaPolicy().ResultsPerRequestMax
		result, err := adapter.Search(ctx, criteria)
		if err != nil {
			var srcErr *models.SourceError
			if errors.As(err, &srcErr) && srcErr.Kind == models.SourceErrorQuotaExhausted {
				p.registry.DisableUntil(adapter.Name(), time.Now().Add(adapter.QuotaPolicy().Period))
			}
			p.logger.Warn().Err(err).
				Str("source", adapter.Name()).
				Str("combination", combo.Key()).
				Msg("Backfill search failed on source")
			continue
		}
		succeeded = true
		jobsFound += len(result.Jobs)
		for _, raw := range result.Jobs {
			job := &models.Job{
				Source:      adapter.Name(),
				ExternalID:  raw.ExternalID,
				Title:       raw.Title,
				Company:     raw.Company,
				Location:    raw.Location,
				Country:     raw.Country,
				Description: raw.Description,
				URL:         raw.URL,
				PostedDate:  raw.PostedDate,
			}
			if _, _, err := p.jobs.UpsertJob(ctx, job); err != nil {
				if errors.Is(err, interfaces.ErrStore) {
					return err
				}
				p.logger.Warn().Err(err).Str("source", adapter.Name()).Msg("Failed to upsert backfilled job")
			}
		}
	}

	if !succeeded {
		return fmt.Errorf("all sources failed for combination %s", combo.Key())
	}

	if err := p.ledger.MarkBackfilled(ctx, combo, jobsFound); err != nil {
		return fmt.Errorf("failed to mark combination backfilled: %w", err)
	}
	p.logger.Info().
		Str("combination", combo.Key()).
		Int("jobs_found", jobsFound).
		Msg("Combination backfilled")

	if p.events != nil {
		if err := p.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventBackfillCompleted,
			Payload: combo,
		}); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to publish backfill.completed")
		}
	}
	return nil
}

// combinationsFromQueries expands queries into per-arrangement
// combinations, deduplicated on the canonical key. A query without
// arrangement restrictions yields one combination with the empty
// arrangement.
func combinationsFromQueries(queries []*models.UserSearchQuery) []models.Combination {
	seen := make(map[string]bool)
	var combos []models.Combination
	add := func(c models.Combination) {
		key := c.Key()
		if !seen[key] {
			seen[key] = true
			combos = append(combos, c)
		}
	}

	for _, q := range queries {
		if q.TitleKeyword == "" {
			continue
		}
		if len(q.WorkArrangements) == 0 {
			add(models.Combination{TitleKeyword: q.TitleKeyword, Location: q.Location})
			continue
		}
		for _, wa := range q.WorkArrangements {
			add(models.Combination{TitleKeyword: q.TitleKeyword, Location: q.Location, WorkArrangement: wa})
		}
	}
	return combos
}
