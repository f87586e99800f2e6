package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// MatchStorage implements the MatchStorage interface for Badger
type MatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertUserJobMatch inserts or updates the row keyed by (user_id, job_id).
// Score fields are refreshed on conflict; a status the user has managed
// (viewed, shortlisted, applied, hidden) is never reset by a re-run.
func (s *MatchStorage) UpsertUserJobMatch(ctx context.Context, match *models.UserJobMatch) error {
	if match == nil {
		return fmt.Errorf("match is required")
	}
	if match.UserID == "" || match.JobID == "" {
		return fmt.Errorf("match user_id and job_id are required")
	}
	match.UserJobKey = models.MatchUserJobKey(match.UserID, match.JobID)

	return withRetry(ctx, s.logger, "upsert_match", func() error {
		existing, err := s.findByUserJobKey(match.UserJobKey)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing == nil {
			fresh := *match
			if fresh.ID == "" {
				fresh.ID = common.NewMatchID()
			}
			if fresh.Status == "" {
				fresh.Status = models.MatchStatusNew
			}
			if fresh.MatchedDate.IsZero() {
				fresh.MatchedDate = now
			}
			fresh.UpdatedAt = now

			if err := s.db.Store().Insert(fresh.ID, &fresh); err != nil {
				if err == badgerhold.ErrUniqueExists {
					winner, ferr := s.findByUserJobKey(match.UserJobKey)
					if ferr != nil {
						return ferr
					}
					if winner == nil {
						return fmt.Errorf("match vanished after unique conflict: %s", match.UserJobKey)
					}
					existing = winner
				} else {
					return fmt.Errorf("failed to insert match: %w", err)
				}
			} else {
				return nil
			}
		}

		existing.SemanticScore = match.SemanticScore
		// Reasoning can arrive without a score when analysis degraded to
		// "analysis unavailable"; a stage-1-only upsert carries neither.
		if match.MatchReasoning != "" {
			existing.MatchReasoning = match.MatchReasoning
		}
		if match.ClaudeScore != nil {
			existing.ClaudeScore = match.ClaudeScore
			existing.Priority = match.Priority
			existing.KeyAlignments = match.KeyAlignments
			existing.PotentialGaps = match.PotentialGaps
		}
		if !models.IsUserManagedStatus(existing.Status) && match.Status != "" {
			existing.Status = match.Status
		}
		existing.UpdatedAt = now
		if err := s.db.Store().Update(existing.ID, existing); err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}
		return nil
	})
}

func (s *MatchStorage) GetMatch(ctx context.Context, userID, jobID string) (*models.UserJobMatch, error) {
	match, err := s.findByUserJobKey(models.MatchUserJobKey(userID, jobID))
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("%w: match %s/%s", interfaces.ErrNotFound, userID, jobID)
	}
	return match, nil
}

// ListMatches returns a user's matches ordered by effective score
// descending: claude_score when present, semantic_score otherwise.
func (s *MatchStorage) ListMatches(ctx context.Context, userID string, limit, offset int) ([]*models.UserJobMatch, error) {
	var matches []models.UserJobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("UserID").Eq(userID)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return effectiveScore(&matches[i]) > effectiveScore(&matches[j])
	})

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}

	result := make([]*models.UserJobMatch, len(matches))
	for i := range matches {
		result[i] = &matches[i]
	}
	return result, nil
}

// UpdateStatus applies a user action to a match row.
func (s *MatchStorage) UpdateStatus(ctx context.Context, userID, jobID, status string) error {
	return withRetry(ctx, s.logger, "update_match_status", func() error {
		existing, err := s.findByUserJobKey(models.MatchUserJobKey(userID, jobID))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: match %s/%s", interfaces.ErrNotFound, userID, jobID)
		}
		existing.Status = status
		existing.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().Update(existing.ID, existing); err != nil {
			return fmt.Errorf("failed to update match status: %w", err)
		}
		return nil
	})
}

// MatchedJobIDs returns the set of job IDs with a match row for the user.
func (s *MatchStorage) MatchedJobIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var matches []models.UserJobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("UserID").Eq(userID)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to load matched job ids: %w", err)
	}
	ids := make(map[string]bool, len(matches))
	for i := range matches {
		ids[matches[i].JobID] = true
	}
	return ids, nil
}

func (s *MatchStorage) findByUserJobKey(key string) (*models.UserJobMatch, error) {
	var rows []models.UserJobMatch
	if err := s.db.Store().Find(&rows, badgerhold.Where("UserJobKey").Eq(key)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up match key: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func effectiveScore(m *models.UserJobMatch) int {
	if m.ClaudeScore != nil {
		return *m.ClaudeScore
	}
	return m.SemanticScore
}
