package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// QueryStorage implements the QueryStorage interface for Badger
type QueryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueryStorage creates a new QueryStorage instance
func NewQueryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueryStorage {
	return &QueryStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceUserQueries swaps the user's query rows for the given set.
func (s *QueryStorage) ReplaceUserQueries(ctx context.Context, userID string, queries []*models.UserSearchQuery) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	return withRetry(ctx, s.logger, "replace_user_queries", func() error {
		if err := s.db.Store().DeleteMatching(&models.UserSearchQuery{}, badgerhold.Where("UserID").Eq(userID)); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("failed to delete existing queries: %w", err)
		}

		now := time.Now().UTC()
		for _, q := range queries {
			row := *q
			row.UserID = userID
			if row.ID == "" {
				row.ID = common.NewQueryID()
			}
			if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			if err := s.db.Store().Insert(row.ID, &row); err != nil {
				return fmt.Errorf("failed to insert query: %w", err)
			}
		}
		return nil
	})
}

func (s *QueryStorage) GetUserQueries(ctx context.Context, userID string) ([]*models.UserSearchQuery, error) {
	var rows []models.UserSearchQuery
	if err := s.db.Store().Find(&rows, badgerhold.Where("UserID").Eq(userID).SortBy("CreatedAt")); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user queries: %w", err)
	}
	result := make([]*models.UserSearchQuery, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

// GetActiveQueries returns active rows across all users for the collector.
func (s *QueryStorage) GetActiveQueries(ctx context.Context) ([]*models.UserSearchQuery, error) {
	var rows []models.UserSearchQuery
	if err := s.db.Store().Find(&rows, badgerhold.Where("IsActive").Eq(true)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active queries: %w", err)
	}
	result := make([]*models.UserSearchQuery, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}
