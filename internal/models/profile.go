package models

import "time"

// CVProfile is the parsed CV consumed by the matching engine. It is
// produced by the CV parser collaborator and treated as read-only here.
type CVProfile struct {
	UserID                 string    `json:"user_id" badgerhold:"unique"`
	TechnicalSkills        []string  `json:"technical_skills"`
	SoftSkills             []string  `json:"soft_skills"`
	DomainExpertise        []string  `json:"domain_expertise"`
	DerivedSeniority       string    `json:"derived_seniority"`
	TotalYearsExperience   float64   `json:"total_years_experience"`
	SemanticSummary        string    `json:"semantic_summary"` // The string that is embedded
	SearchKeywordsAbstract []string  `json:"search_keywords_abstract"`
	UpdatedAt              time.Time `json:"updated_at"`
}
