package models

import "time"

// MatchStage identifies where a matching run currently is. Stages advance
// strictly in the order listed; DONE, ERROR and CANCELLED are terminal.
type MatchStage string

const (
	StageIdle              MatchStage = "idle"
	StageInitializing      MatchStage = "initializing"
	StageLoadingModel      MatchStage = "loading_model"
	StageFetchingJobs      MatchStage = "fetching_jobs"
	StageSemanticFiltering MatchStage = "semantic_filtering"
	StageSavingMatches     MatchStage = "saving_matches"
	StageAnalyzing         MatchStage = "analyzing"
	StageDone              MatchStage = "done"
	StageError             MatchStage = "error"
	StageCancelled         MatchStage = "cancelled"
)

// stageOrder positions non-terminal stages for monotonicity checks.
var stageOrder = map[MatchStage]int{
	StageIdle:              0,
	StageInitializing:      1,
	StageLoadingModel:      2,
	StageFetchingJobs:      3,
	StageSemanticFiltering: 4,
	StageSavingMatches:     5,
	StageAnalyzing:         6,
	StageDone:              7,
}

// StageRank returns the position of a stage in the run order, or -1 for
// terminal failure stages which may follow any stage.
func StageRank(s MatchStage) int {
	if rank, ok := stageOrder[s]; ok {
		return rank
	}
	return -1
}

// IsTerminal reports whether the stage ends a run.
func (s MatchStage) IsTerminal() bool {
	return s == StageDone || s == StageError || s == StageCancelled
}

// ProgressEvent is the snapshot consumed by the UI. Progress is
// monotonically non-decreasing within a run.
type ProgressEvent struct {
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"` // running|done|error|cancelled|idle
	Stage           MatchStage `json:"stage"`
	Progress        int        `json:"progress"` // 0-100
	MatchesFound    int        `json:"matches_found"`
	JobsAnalyzed    int        `json:"jobs_analyzed"`
	ChunksCompleted int        `json:"chunks_completed"`
	TotalChunks     int        `json:"total_chunks"`
	Message         string     `json:"message,omitempty"`
	NewsSnippets    []string   `json:"news_snippets,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
