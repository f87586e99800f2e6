package enrichment

import (
	"fmt"
	"strings"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// maxDescriptionChars bounds the prompt size for very long postings.
const maxDescriptionChars = 12000

const enrichmentSystemPrompt = `You are a job posting analyst. Extract structured metadata from the job posting.
Rules:
- key_skills: specific technical and professional skills actually required, lowercase
- keywords: search terms a candidate would use to find this job, lowercase
- taxonomies: industry/function categories, lowercase
- work_arrangement: "onsite", "hybrid" or "remote"; use the posting's own wording, not guesses
- experience_level: "0-2", "2-5", "5-10" or "10+" years
- employment_type: e.g. "full-time", "part-time", "contract", "internship"
- salary_min/salary_max: numeric annual values only when the posting states them, otherwise omit
- semantic_summary: 2-3 sentences capturing role, seniority, domain and stack, written for vector similarity search
Omit any field the posting gives no evidence for. Never invent values.`

// enrichmentSchema is the response schema enforced by the provider.
var enrichmentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"key_skills": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"keywords": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"taxonomies": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"work_arrangement": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"onsite", "hybrid", "remote"},
		},
		"experience_level": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"0-2", "2-5", "5-10", "10+"},
		},
		"employment_type": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"core_responsibilities": map[string]interface{}{"type": "string"},
		"requirements_summary":  map[string]interface{}{"type": "string"},
		"benefits": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"salary_min":       map[string]interface{}{"type": "number"},
		"salary_max":       map[string]interface{}{"type": "number"},
		"salary_currency":  map[string]interface{}{"type": "string"},
		"semantic_summary": map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"semantic_summary"},
}

// enrichmentPayload is the wire shape of the model response.
type enrichmentPayload struct {
	KeySkills            []string `json:"key_skills"`
	Keywords             []string `json:"keywords"`
	Taxonomies           []string `json:"taxonomies"`
	WorkArrangement      string   `json:"work_arrangement"`
	ExperienceLevel      string   `json:"experience_level"`
	EmploymentType       []string `json:"employment_type"`
	CoreResponsibilities string   `json:"core_responsibilities"`
	RequirementsSummary  string   `json:"requirements_summary"`
	Benefits             []string `json:"benefits"`
	SalaryMin            *float64 `json:"salary_min"`
	SalaryMax            *float64 `json:"salary_max"`
	SalaryCurrency       string   `json:"salary_currency"`
	SemanticSummary      string   `json:"semantic_summary"`
}

func buildEnrichmentMessages(job *models.Job) []interfaces.Message {
	description := job.Description
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	if job.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", job.Company)
	}
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	fmt.Fprintf(&b, "\nDescription:\n%s\n", description)

	return []interfaces.Message{
		{Role: "system", Content: enrichmentSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// toMetadata converts the payload, normalizing enum values the model may
// have returned with stray casing.
func (p *enrichmentPayload) toMetadata() *models.AIMetadata {
	meta := &models.AIMetadata{
		KeySkills:            lowerAll(p.KeySkills),
		Keywords:             lowerAll(p.Keywords),
		Taxonomies:           lowerAll(p.Taxonomies),
		EmploymentType:       lowerAll(p.EmploymentType),
		CoreResponsibilities: p.CoreResponsibilities,
		RequirementsSummary:  p.RequirementsSummary,
		Benefits:             p.Benefits,
		SalaryMin:            p.SalaryMin,
		SalaryMax:            p.SalaryMax,
		SalaryCurrency:       strings.ToUpper(strings.TrimSpace(p.SalaryCurrency)),
		SemanticSummary:      strings.TrimSpace(p.SemanticSummary),
	}

	switch strings.ToLower(strings.TrimSpace(p.WorkArrangement)) {
	case models.ArrangementOnsite, models.ArrangementHybrid, models.ArrangementRemote:
		meta.WorkArrangement = strings.ToLower(strings.TrimSpace(p.WorkArrangement))
	}
	switch strings.TrimSpace(p.ExperienceLevel) {
	case models.ExperienceJunior, models.ExperienceMid, models.ExperienceSenior, models.ExperienceLead:
		meta.ExperienceLevel = strings.TrimSpace(p.ExperienceLevel)
	}
	return meta
}

func lowerAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
