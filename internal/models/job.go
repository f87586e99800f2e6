package models

import (
	"time"
)

// Work arrangement values for AI metadata and user filters.
const (
	ArrangementOnsite = "onsite"
	ArrangementHybrid = "hybrid"
	ArrangementRemote = "remote"
)

// Experience level buckets derived by enrichment.
const (
	ExperienceJunior = "0-2"
	ExperienceMid    = "2-5"
	ExperienceSenior = "5-10"
	ExperienceLead   = "10+"
)

// AIMetadata holds the enrichment output for a job. The pointer on Job is
// nil until the enricher has run; individual fields inside may still be
// empty when the model returned nothing for them.
type AIMetadata struct {
	KeySkills            []string `json:"ai_key_skills,omitempty"`
	Keywords             []string `json:"ai_keywords,omitempty"`
	Taxonomies           []string `json:"ai_taxonomies,omitempty"`
	WorkArrangement      string   `json:"ai_work_arrangement,omitempty"` // onsite|hybrid|remote
	ExperienceLevel      string   `json:"ai_experience_level,omitempty"` // 0-2|2-5|5-10|10+
	EmploymentType       []string `json:"ai_employment_type,omitempty"`
	CoreResponsibilities string   `json:"ai_core_responsibilities,omitempty"`
	RequirementsSummary  string   `json:"ai_requirements_summary,omitempty"`
	Benefits             []string `json:"ai_benefits,omitempty"`
	SalaryMin            *float64 `json:"ai_salary_min,omitempty"`
	SalaryMax            *float64 `json:"ai_salary_max,omitempty"`
	SalaryCurrency       string   `json:"ai_salary_currency,omitempty"`
	SemanticSummary      string   `json:"semantic_summary,omitempty"`
}

// Job represents a normalized job posting, global across users.
// Identity is (Source, ExternalID); SourceKey is the composite index key.
type Job struct {
	ID         string `json:"id" badgerhold:"unique"` // job_{uuid}
	Source     string `json:"source" badgerhold:"index"`
	ExternalID string `json:"external_id"`
	SourceKey  string `json:"source_key" badgerhold:"unique"` // "<source>|<external_id>"

	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Country     string    `json:"country"` // Lowercased ISO-3166-1 alpha-2
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PostedDate  time.Time `json:"posted_date"`

	// DiscoveredDate is the day bucket used for chunked matching, newest first.
	DiscoveredDate time.Time `json:"discovered_date" badgerhold:"index"`

	AI *AIMetadata `json:"ai,omitempty"`

	// Enriched mirrors AI != nil as an indexed field so the enrichment
	// backlog can be queried without scanning every row.
	Enriched bool `json:"enriched" badgerhold:"index"`

	// EnrichFailedAt gates re-enrichment after a double parse failure.
	EnrichFailedAt *time.Time `json:"enrich_failed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSourceKey builds the composite uniqueness key for (source, external_id).
func JobSourceKey(source, externalID string) string {
	return source + "|" + externalID
}

// NeedsEnrichment reports whether the job is missing AI metadata and is not
// in the failure cool-down window.
func (j *Job) NeedsEnrichment(now time.Time, cooldown time.Duration) bool {
	if j.AI != nil {
		return false
	}
	if j.EnrichFailedAt != nil && now.Sub(*j.EnrichFailedAt) < cooldown {
		return false
	}
	return true
}

// MergeAI fills missing AI fields from meta without overwriting fields that
// are already present. Returns true if anything changed.
func (j *Job) MergeAI(meta *AIMetadata) bool {
	if meta == nil {
		return false
	}
	if j.AI == nil {
		j.AI = meta
		return true
	}

	changed := false
	dst := j.AI
	if len(dst.KeySkills) == 0 && len(meta.KeySkills) > 0 {
		dst.KeySkills = meta.KeySkills
		changed = true
	}
	if len(dst.Keywords) == 0 && len(meta.Keywords) > 0 {
		dst.Keywords = meta.Keywords
		changed = true
	}
	if len(dst.Taxonomies) == 0 && len(meta.Taxonomies) > 0 {
		dst.Taxonomies = meta.Taxonomies
		changed = true
	}
	if dst.WorkArrangement == "" && meta.WorkArrangement != "" {
		dst.WorkArrangement = meta.WorkArrangement
		changed = true
	}
	if dst.ExperienceLevel == "" && meta.ExperienceLevel != "" {
		dst.ExperienceLevel = meta.ExperienceLevel
		changed = true
	}
	if len(dst.EmploymentType) == 0 && len(meta.EmploymentType) > 0 {
		dst.EmploymentType = meta.EmploymentType
		changed = true
	}
	if dst.CoreResponsibilities == "" && meta.CoreResponsibilities != "" {
		dst.CoreResponsibilities = meta.CoreResponsibilities
		changed = true
	}
	if dst.RequirementsSummary == "" && meta.RequirementsSummary != "" {
		dst.RequirementsSummary = meta.RequirementsSummary
		changed = true
	}
	if len(dst.Benefits) == 0 && len(meta.Benefits) > 0 {
		dst.Benefits = meta.Benefits
		changed = true
	}
	if dst.SalaryMin == nil && meta.SalaryMin != nil {
		dst.SalaryMin = meta.SalaryMin
		changed = true
	}
	if dst.SalaryMax == nil && meta.SalaryMax != nil {
		dst.SalaryMax = meta.SalaryMax
		changed = true
	}
	if dst.SalaryCurrency == "" && meta.SalaryCurrency != "" {
		dst.SalaryCurrency = meta.SalaryCurrency
		changed = true
	}
	if dst.SemanticSummary == "" && meta.SemanticSummary != "" {
		dst.SemanticSummary = meta.SemanticSummary
		changed = true
	}
	return changed
}
