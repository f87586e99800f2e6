package models

import "time"

// Match status values. "new" is system-assigned; everything else is a
// user action and is never downgraded by upserts.
const (
	MatchStatusNew         = "new"
	MatchStatusViewed      = "viewed"
	MatchStatusShortlisted = "shortlisted"
	MatchStatusApplied     = "applied"
	MatchStatusHidden      = "hidden"
)

// Match priority derived from claude_score.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// UserJobMatch is the per-user analysis result for a job.
// Identity is (UserID, JobID); UserJobKey is the composite index key.
type UserJobMatch struct {
	ID         string `json:"id" badgerhold:"unique"` // match_{uuid}
	UserID     string `json:"user_id" badgerhold:"index"`
	JobID      string `json:"job_id" badgerhold:"index"`
	UserJobKey string `json:"user_job_key" badgerhold:"unique"` // "<user_id>|<job_id>"

	SemanticScore int  `json:"semantic_score"` // 0-100
	ClaudeScore   *int `json:"claude_score,omitempty"`

	Priority       string   `json:"priority,omitempty"`
	MatchReasoning string   `json:"match_reasoning,omitempty"`
	KeyAlignments  []string `json:"key_alignments,omitempty"`
	PotentialGaps  []string `json:"potential_gaps,omitempty"`

	Status      string    `json:"status"`
	MatchedDate time.Time `json:"matched_date"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatchUserJobKey builds the composite uniqueness key for (user_id, job_id).
func MatchUserJobKey(userID, jobID string) string {
	return userID + "|" + jobID
}

// IsUserManagedStatus reports whether the status was set by a user action.
func IsUserManagedStatus(status string) bool {
	return status != "" && status != MatchStatusNew
}

// PriorityForScore maps a claude_score to a priority bucket.
func PriorityForScore(score int) string {
	switch {
	case score >= 85:
		return PriorityHigh
	case score >= 65:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
