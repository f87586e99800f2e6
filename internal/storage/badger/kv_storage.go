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

// KeyValueStorage implements generic key/value persistence for Badger
type KeyValueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKeyValueStorage creates a new KeyValueStorage instance
func NewKeyValueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KeyValueStorage{
		db:     db,
		logger: logger,
	}
}

func (s *KeyValueStorage) Get(ctx context.Context, key string) (string, error) {
	var pair models.KVPair
	if err := s.db.Store().Get(key, &pair); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", fmt.Errorf("%w: key %s", interfaces.ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return pair.Value, nil
}

func (s *KeyValueStorage) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	pair := models.KVPair{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return withRetry(ctx, s.logger, "kv_set", func() error {
		if err := s.db.Store().Upsert(key, &pair); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return nil
	})
}

func (s *KeyValueStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &models.KVPair{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *KeyValueStorage) GetAll(ctx context.Context) (map[string]string, error) {
	var pairs []models.KVPair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		result[p.Key] = p.Value
	}
	return result, nil
}
