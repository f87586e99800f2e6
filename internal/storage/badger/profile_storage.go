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

// ProfileStorage implements the ProfileStorage interface for Badger
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProfileStorage) GetProfile(ctx context.Context, userID string) (*models.CVProfile, error) {
	var profile models.CVProfile
	if err := s.db.Store().Get(userID, &profile); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: profile %s", interfaces.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStorage) SaveProfile(ctx context.Context, profile *models.CVProfile) error {
	if profile == nil || profile.UserID == "" {
		return fmt.Errorf("profile user_id is required")
	}
	profile.UpdatedAt = time.Now().UTC()
	return withRetry(ctx, s.logger, "save_profile", func() error {
		if err := s.db.Store().Upsert(profile.UserID, profile); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	})
}
