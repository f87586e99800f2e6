package analyzer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
	"github.com/Inclusist/job-monitor-sub000/internal/services/llm"
)

// analysisSystemPrompt calibrates the score against the precomputed skill
// overlap so runs stay comparable. The model may adjust within a band for
// soft factors but the overlap anchors the range.
const analysisSystemPrompt = `You are a career-match analyst. Score how well the candidate fits the job on a 0-100 scale.

Calibration against the provided skill_match_pct:
- 0.80 or higher: score 85-95
- 0.60 to 0.79: score 75-84
- 0.40 to 0.59: score 60-74
- below 0.40: score below 60
You may adjust up to 5 points in either direction for industry fit, seniority fit, or strong transferable experience.

Respond with a single JSON object:
{
  "score": <integer 0-100>,
  "reasoning": "<2-4 sentences explaining the score>",
  "key_alignments": ["<specific strength>", ...],
  "potential_gaps": ["<specific gap>", ...]
}
No markdown fences, no text outside the JSON object.`

type analysisPayload struct {
	Score         *int     `json:"score"`
	Reasoning     string   `json:"reasoning"`
	KeyAlignments []string `json:"key_alignments"`
	PotentialGaps []string `json:"potential_gaps"`
}

// Service performs the stage-2 per-pair analysis with Claude.
type Service struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewService creates the analyzer service.
func NewService(llmService interfaces.LLMService, logger arbor.ILogger) interfaces.AnalyzerService {
	return &Service{
		llm:    llmService,
		logger: logger,
	}
}

// Analyze scores one (profile, job) pair. A malformed response gets one
// fresh request; after a second parse failure the pair is recorded with a
// nil score rather than failing the run.
func (s *Service) Analyze(ctx context.Context, profile *models.CVProfile, job *models.Job) (*interfaces.AnalysisResult, error) {
	if profile == nil || job == nil {
		return nil, fmt.Errorf("profile and job are required")
	}

	overlap := ComputeOverlap(profile, job)
	messages := []interfaces.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: buildAnalysisPrompt(profile, job, overlap)},
	}

	var payload analysisPayload
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		response, err := s.llm.Chat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("analysis request failed for job %s: %w", job.ID, err)
		}
		parseErr = llm.ParseJSON(response, &payload)
		if parseErr == nil && payload.Score != nil {
			break
		}
		if parseErr == nil {
			parseErr = fmt.Errorf("response missing score field")
		}
		s.logger.Warn().
			Err(parseErr).
			Str("job_id", job.ID).
			Int("attempt", attempt+1).
			Msg("Analysis response failed to parse")
	}
	if parseErr != nil {
		// Degrade to a semantic-only match instead of failing the run.
		return &interfaces.AnalysisResult{
			Score:     nil,
			Reasoning: "analysis unavailable",
		}, nil
	}

	score := clampScore(*payload.Score)
	result := &interfaces.AnalysisResult{
		Score:      &score,
		Reasoning:  strings.TrimSpace(payload.Reasoning),
		Alignments: payload.KeyAlignments,
		Gaps:       payload.PotentialGaps,
		Priority:   models.PriorityForScore(score),
	}
	if result.Reasoning == "" {
		result.Reasoning = "no reasoning provided"
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("score", score).
		Str("priority", result.Priority).
		Float64("skill_match_pct", overlap.MatchPct).
		Msg("Pair analysis completed")

	return result, nil
}

func buildAnalysisPrompt(profile *models.CVProfile, job *models.Job, overlap SkillOverlap) string {
	var b strings.Builder

	b.WriteString("## Candidate\n")
	if profile.SemanticSummary != "" {
		fmt.Fprintf(&b, "%s\n", profile.SemanticSummary)
	}
	fmt.Fprintf(&b, "Seniority: %s, %.0f years experience\n", profile.DerivedSeniority, profile.TotalYearsExperience)
	if len(profile.TechnicalSkills) > 0 {
		fmt.Fprintf(&b, "Technical skills: %s\n", strings.Join(capList(profile.TechnicalSkills), ", "))
	}
	if len(profile.DomainExpertise) > 0 {
		fmt.Fprintf(&b, "Domains: %s\n", strings.Join(profile.DomainExpertise, ", "))
	}

	b.WriteString("\n## Job\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	if job.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", job.Company)
	}
	if job.AI != nil {
		if job.AI.SemanticSummary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", job.AI.SemanticSummary)
		}
		if job.AI.RequirementsSummary != "" {
			fmt.Fprintf(&b, "Requirements: %s\n", job.AI.RequirementsSummary)
		}
		if len(job.AI.KeySkills) > 0 {
			fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(capList(job.AI.KeySkills), ", "))
		}
	} else {
		fmt.Fprintf(&b, "Description: %s\n", truncateAtRune(job.Description, 3000))
	}

	b.WriteString("\n## Precomputed overlap\n")
	fmt.Fprintf(&b, "skill_match_pct: %.2f\n", overlap.MatchPct)
	fmt.Fprintf(&b, "matching_skills: %s\n", strings.Join(overlap.MatchingSkills, ", "))
	fmt.Fprintf(&b, "missing_skills: %s\n", strings.Join(overlap.MissingSkills, ", "))
	fmt.Fprintf(&b, "additional_candidate_skills: %s\n", strings.Join(overlap.ExtraSkills, ", "))
	fmt.Fprintf(&b, "industry_match: %t\n", overlap.IndustryMatch)
	fmt.Fprintf(&b, "experience: %s\n", overlap.ExperienceNote)

	return b.String()
}

func capList(values []string) []string {
	if len(values) > maxListedSkills {
		return values[:maxListedSkills]
	}
	return values
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

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
