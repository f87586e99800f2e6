// Package common provides shared utilities and default configuration.
package common

import "time"

// Matching pipeline defaults. Thresholds are 0-100 integer scores.
const (
	DefaultSemanticThreshold = 30
	DefaultLLMThreshold      = 50
	DefaultChunkMaxSize      = 500
	DefaultEmbedWorkers      = 4
	DefaultLLMWorkers        = 3

	// Stage-2 selection: top quarter of each chunk, bounded.
	DefaultAnalyzeMinPerChunk = 5
	DefaultAnalyzeMaxPerChunk = 50
)

// Collector defaults.
const (
	DefaultCollectorIntervalMinutes = 60
	DefaultCollectorGraceMinutes    = 10
	DefaultEnrichPerTick            = 50
	DefaultEnrichWorkers            = 4
	DefaultBackfillDays             = 30
)

// Timeouts.
const (
	DefaultSourceTimeout    = 30 * time.Second
	DefaultLLMTimeout       = 60 * time.Second
	DefaultModelLoadTimeout = 60 * time.Second
	DefaultRunSoftTimeout   = 30 * time.Minute

	// A job whose enrichment failed twice is not retried before this elapses.
	DefaultEnrichCooldown = 24 * time.Hour
)

// Store write retry policy.
const (
	DefaultStoreRetries     = 3
	DefaultStoreRetryBase   = 200 * time.Millisecond
	DefaultSourceRetryBase  = 1 * time.Second
	DefaultSourceRetryCap   = 30 * time.Second
	DefaultSourceRetryCount = 3
)
