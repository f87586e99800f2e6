package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// BackfillStorage implements the BackfillStorage interface for Badger.
// Records are global across users so each combination is backfilled at
// most once for the lifetime of the database.
type BackfillStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBackfillStorage creates a new BackfillStorage instance
func NewBackfillStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BackfillStorage {
	return &BackfillStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BackfillStorage) IsCombinationBackfilled(ctx context.Context, combo models.Combination) (bool, error) {
	var record models.BackfillRecord
	if err := s.db.Store().Get(combo.Key(), &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check backfill record: %w", err)
	}
	return true, nil
}

// MarkBackfilled records a successful backfill. Only called after the fetch
// completed so a failed backfill stays eligible for retry.
func (s *BackfillStorage) MarkBackfilled(ctx context.Context, combo models.Combination, jobsFound int) error {
	record := models.BackfillRecord{
		Key:            combo.Key(),
		Combination:    combo,
		BackfilledDate: time.Now().UTC(),
		JobsFound:      jobsFound,
	}
	return withRetry(ctx, s.logger, "mark_backfilled", func() error {
		if err := s.db.Store().Upsert(record.Key, &record); err != nil {
			return fmt.Errorf("failed to mark backfilled: %w", err)
		}
		return nil
	})
}
