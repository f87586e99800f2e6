package matcher

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}
	d := []float32{-1, 0, 0}

	sim, err := Cosine(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = Cosine(a, c)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	sim, err = Cosine(a, d)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	_, err = Cosine(a, []float32{1, 2})
	require.Error(t, err)

	sim, err = Cosine([]float32{0, 0, 0}, a)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestScoreMapping(t *testing.T) {
	tests := []struct {
		similarity float64
		want       int
	}{
		{-0.5, 0},  // Negative similarity clips to 0
		{0, 0},
		{0.004, 0}, // Rounds down
		{0.005, 1}, // Rounds up
		{0.295, 30},
		{0.3, 30},
		{0.754, 75},
		{0.755, 76},
		{1.0, 100},
		{1.2, 100}, // Above 1 clips
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Score(tt.similarity), "similarity=%v", tt.similarity)
	}
}

func TestJobTextPrefersSemanticSummary(t *testing.T) {
	job := &models.Job{
		Title:       "Backend Engineer",
		Company:     "Acme",
		Description: "A very long raw posting text",
		AI: &models.AIMetadata{
			SemanticSummary: "Senior Go backend role.",
			KeySkills:       []string{"go", "postgres"},
		},
	}
	text := JobText(job)
	assert.Contains(t, text, "Backend Engineer at Acme")
	assert.Contains(t, text, "Senior Go backend role.")
	assert.Contains(t, text, "go, postgres")
	assert.NotContains(t, text, "raw posting")
}

func TestJobTextFallsBackToDescription(t *testing.T) {
	job := &models.Job{Title: "Engineer", Description: "Build services in Go."}
	assert.Contains(t, JobText(job), "Build services in Go.")
}

func TestJobTextTruncatesLongDescriptionsAtRuneBoundary(t *testing.T) {
	// "€" is 3 bytes; a cut at byte 2000 would land mid-rune.
	job := &models.Job{Title: "Engineer", Description: strings.Repeat("€", 1000)}
	text := JobText(job)
	assert.True(t, utf8.ValidString(text), "truncation must not split a rune")
}

func TestTruncateAtRune(t *testing.T) {
	s := "a" + strings.Repeat("ü", 5) // 11 bytes, rune starts at 1,3,5,7,9
	assert.Equal(t, s, truncateAtRune(s, 11))
	assert.Equal(t, "aüü", truncateAtRune(s, 6), "byte 6 is mid-rune, back off to 5")
	assert.Equal(t, "aüü", truncateAtRune(s, 5))
	assert.Equal(t, "", truncateAtRune("ü", 1))
}

func TestProfileText(t *testing.T) {
	profile := &models.CVProfile{
		SemanticSummary:      "Experienced platform engineer.",
		TechnicalSkills:      []string{"go", "kubernetes"},
		DomainExpertise:      []string{"fintech"},
		DerivedSeniority:     "senior",
		TotalYearsExperience: 8,
	}
	text := ProfileText(profile)
	assert.Contains(t, text, "Experienced platform engineer.")
	assert.Contains(t, text, "go, kubernetes")
	assert.Contains(t, text, "senior (8 years)")
}
