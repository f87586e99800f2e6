package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// maxListedSkills caps the skill lists embedded in the prompt so a
// keyword-stuffed posting cannot blow up the token budget.
const maxListedSkills = 20

// SkillOverlap is the deterministic comparison computed before the model
// sees anything. Grounding the prompt in it keeps scores consistent across
// runs.
type SkillOverlap struct {
	MatchPct       float64
	MatchingSkills []string
	MissingSkills  []string
	ExtraSkills    []string
	IndustryMatch  bool
	ExperienceNote string
}

// ComputeOverlap compares a profile against a job's extracted skills.
func ComputeOverlap(profile *models.CVProfile, job *models.Job) SkillOverlap {
	var overlap SkillOverlap

	profileSkills := normalizeSkillSet(profile.TechnicalSkills)
	var jobSkills map[string]bool
	if job.AI != nil {
		jobSkills = normalizeSkillSet(job.AI.KeySkills)
	} else {
		jobSkills = map[string]bool{}
	}

	matched := 0
	for skill := range jobSkills {
		if profileSkills[skill] {
			matched++
			overlap.MatchingSkills = append(overlap.MatchingSkills, skill)
		} else {
			overlap.MissingSkills = append(overlap.MissingSkills, skill)
		}
	}
	for skill := range profileSkills {
		if !jobSkills[skill] {
			overlap.ExtraSkills = append(overlap.ExtraSkills, skill)
		}
	}
	if len(jobSkills) > 0 {
		overlap.MatchPct = float64(matched) / float64(len(jobSkills))
	}
	sortAndCap(&overlap.MatchingSkills)
	sortAndCap(&overlap.MissingSkills)
	sortAndCap(&overlap.ExtraSkills)

	overlap.IndustryMatch = industryMatches(profile, job)
	overlap.ExperienceNote = compareExperience(profile, job)

	return overlap
}

func industryMatches(profile *models.CVProfile, job *models.Job) bool {
	if job.AI == nil || len(job.AI.Taxonomies) == 0 || len(profile.DomainExpertise) == 0 {
		return false
	}
	domains := normalizeSkillSet(profile.DomainExpertise)
	for _, tax := range job.AI.Taxonomies {
		if domains[strings.ToLower(strings.TrimSpace(tax))] {
			return true
		}
	}
	return false
}

// compareExperience renders the years-vs-level comparison for the prompt.
func compareExperience(profile *models.CVProfile, job *models.Job) string {
	if job.AI == nil || job.AI.ExperienceLevel == "" {
		return "job experience level unknown"
	}
	years := profile.TotalYearsExperience
	level := job.AI.ExperienceLevel

	var within bool
	switch level {
	case models.ExperienceJunior:
		within = years <= 2
	case models.ExperienceMid:
		within = years >= 2 && years <= 5
	case models.ExperienceSenior:
		within = years >= 5 && years <= 10
	case models.ExperienceLead:
		within = years >= 10
	}
	if within {
		return fmt.Sprintf("candidate's %.0f years fit the %s-year requirement", years, level)
	}
	return fmt.Sprintf("candidate has %.0f years, job asks for %s years", years, level)
}

func normalizeSkillSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = true
		}
	}
	return set
}

func sortAndCap(skills *[]string) {
	sort.Strings(*skills)
	if len(*skills) > maxListedSkills {
		*skills = (*skills)[:maxListedSkills]
	}
}
