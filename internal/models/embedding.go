package models

import "time"

// JobEmbedding caches a job summary vector keyed by (job_id, model_version).
// Entries for older model versions are simply never looked up again and are
// swept by storage maintenance.
type JobEmbedding struct {
	Key          string    `json:"key" badgerhold:"unique"` // "<job_id>|<model_version>"
	JobID        string    `json:"job_id" badgerhold:"index"`
	ModelVersion string    `json:"model_version"`
	Vector       []float32 `json:"vector"`
	CreatedAt    time.Time `json:"created_at"`
}

// EmbeddingKey builds the cache key for a job vector.
func EmbeddingKey(jobID, modelVersion string) string {
	return jobID + "|" + modelVersion
}
