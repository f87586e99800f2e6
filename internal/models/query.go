package models

import (
	"strings"
	"time"
)

// UserSearchQuery is a normalized one-row-per-combination search query.
type UserSearchQuery struct {
	ID               string    `json:"id" badgerhold:"unique"`
	UserID           string    `json:"user_id" badgerhold:"index"`
	TitleKeyword     string    `json:"title_keyword"`
	Location         string    `json:"location"`
	WorkArrangements []string  `json:"work_arrangements"` // Subset of onsite|hybrid|remote
	Priority         int       `json:"priority"`
	IsActive         bool      `json:"is_active" badgerhold:"index"`
	CreatedAt        time.Time `json:"created_at"`
}

// ArrangementSet returns the pipe-joined canonical form of the arrangements.
func (q *UserSearchQuery) ArrangementSet() string {
	return CanonicalSet(q.WorkArrangements)
}

// Combination identifies a global search tuple for backfill tracking.
// Nullable fields participate via their canonical empty form.
type Combination struct {
	TitleKeyword    string `json:"title_keyword"`
	Location        string `json:"location"`
	WorkArrangement string `json:"work_arrangement"`
	EmploymentType  string `json:"employment_type,omitempty"`
	Seniority       string `json:"seniority,omitempty"`
	Industry        string `json:"industry,omitempty"`
}

// Key returns the canonical unique key for the combination. Fields are
// lowercased and trimmed so that equivalent tuples from different users
// collapse to the same key.
func (c Combination) Key() string {
	parts := []string{
		c.TitleKeyword,
		c.Location,
		c.WorkArrangement,
		c.EmploymentType,
		c.Seniority,
		c.Industry,
	}
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			p = "-"
		}
		parts[i] = p
	}
	return strings.Join(parts, "|")
}

// BackfillRecord marks a combination whose historical window has been
// fetched once, globally across users.
type BackfillRecord struct {
	Key            string      `json:"key" badgerhold:"unique"`
	Combination    Combination `json:"combination"`
	BackfilledDate time.Time   `json:"backfilled_date"`
	JobsFound      int         `json:"jobs_found"`
}

// CanonicalSet lowercases, sorts, dedups and pipe-joins a string set.
func CanonicalSet(values []string) string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	// Insertion sort keeps the helper dependency-free for tiny sets.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return strings.Join(out, "|")
}
