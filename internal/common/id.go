package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewMatchID generates a unique match ID with the "match_" prefix
func NewMatchID() string {
	return "match_" + uuid.New().String()
}

// NewRunID generates a unique matching-run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewQueryID generates a unique search-query ID with the "query_" prefix
func NewQueryID() string {
	return "query_" + uuid.New().String()
}
