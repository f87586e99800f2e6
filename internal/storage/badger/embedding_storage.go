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

// EmbeddingStorage caches job vectors keyed by (job_id, model_version) so a
// model upgrade invalidates the cache implicitly.
type EmbeddingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEmbeddingStorage creates a new EmbeddingStorage instance
func NewEmbeddingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EmbeddingStorage {
	return &EmbeddingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EmbeddingStorage) GetEmbedding(ctx context.Context, jobID, modelVersion string) ([]float32, error) {
	var row models.JobEmbedding
	if err := s.db.Store().Get(models.EmbeddingKey(jobID, modelVersion), &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: embedding %s@%s", interfaces.ErrNotFound, jobID, modelVersion)
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return row.Vector, nil
}

func (s *EmbeddingStorage) SaveEmbedding(ctx context.Context, embedding *models.JobEmbedding) error {
	if embedding == nil || embedding.JobID == "" || embedding.ModelVersion == "" {
		return fmt.Errorf("embedding job_id and model_version are required")
	}
	embedding.Key = models.EmbeddingKey(embedding.JobID, embedding.ModelVersion)
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now().UTC()
	}
	return withRetry(ctx, s.logger, "save_embedding", func() error {
		if err := s.db.Store().Upsert(embedding.Key, embedding); err != nil {
			return fmt.Errorf("failed to save embedding: %w", err)
		}
		return nil
	})
}
