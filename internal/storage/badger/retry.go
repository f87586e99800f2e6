package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// withRetry runs op up to common.DefaultStoreRetries times with exponential
// backoff. Write conflicts are the common retryable case under concurrent
// upserts. Exhausted retries are wrapped in interfaces.ErrStore so callers
// can treat the failure as fatal to the current run.
func withRetry(ctx context.Context, logger arbor.ILogger, name string, op func() error) error {
	var lastErr error
	delay := common.DefaultStoreRetryBase

	for attempt := 1; attempt <= common.DefaultStoreRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		logger.Warn().
			Err(lastErr).
			Str("op", name).
			Int("attempt", attempt).
			Msg("Retryable store error")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", interfaces.ErrStore, name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%w: %s: %v", interfaces.ErrStore, name, lastErr)
}

func isRetryable(err error) bool {
	return errors.Is(err, badgerdb.ErrConflict)
}
