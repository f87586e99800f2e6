package matcher

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// Cosine returns the cosine similarity of two vectors. Zero-magnitude
// vectors yield 0 rather than NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Score maps a cosine similarity onto the 0-100 match scale: negative
// similarities clip to 0, then round half away from zero.
func Score(similarity float64) int {
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return int(math.Round(similarity * 100))
}

// JobText builds the text embedded for a job. The enrichment summary is
// the best signal when present; otherwise fall back to the raw posting.
func JobText(job *models.Job) string {
	var b strings.Builder
	b.WriteString(job.Title)
	if job.Company != "" {
		b.WriteString(" at ")
		b.WriteString(job.Company)
	}
	b.WriteString(". ")

	if job.AI != nil && job.AI.SemanticSummary != "" {
		b.WriteString(job.AI.SemanticSummary)
		if len(job.AI.KeySkills) > 0 {
			b.WriteString(" Skills: ")
			b.WriteString(strings.Join(job.AI.KeySkills, ", "))
			b.WriteString(".")
		}
		return b.String()
	}

	b.WriteString(truncateAtRune(job.Description, 2000))
	return b.String()
}

// truncateAtRune cuts s to at most max bytes without splitting a UTF-8
// sequence.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ProfileText builds the text embedded for a user profile.
func ProfileText(profile *models.CVProfile) string {
	var b strings.Builder
	if profile.SemanticSummary != "" {
		b.WriteString(profile.SemanticSummary)
		b.WriteString(" ")
	}
	if len(profile.TechnicalSkills) > 0 {
		b.WriteString("Technical skills: ")
		b.WriteString(strings.Join(profile.TechnicalSkills, ", "))
		b.WriteString(". ")
	}
	if len(profile.DomainExpertise) > 0 {
		b.WriteString("Domains: ")
		b.WriteString(strings.Join(profile.DomainExpertise, ", "))
		b.WriteString(". ")
	}
	if profile.DerivedSeniority != "" {
		fmt.Fprintf(&b, "Seniority: %s (%.0f years).", profile.DerivedSeniority, profile.TotalYearsExperience)
	}
	return strings.TrimSpace(b.String())
}
