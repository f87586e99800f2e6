package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

func intPtr(v int) *int { return &v }

func TestUpsertMatchIsUniquePerUserJob(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 40,
	}))
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 55,
	}))

	all, err := storage.ListMatches(ctx, "user-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 55, all[0].SemanticScore)
	assert.Equal(t, models.MatchStatusNew, all[0].Status)
}

func TestUpsertMatchPreservesUserManagedStatus(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 40,
	}))
	require.NoError(t, storage.UpdateStatus(ctx, "user-1", "job-1", models.MatchStatusShortlisted))

	// A re-run refreshes scores but must not reset the status.
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 62,
		ClaudeScore: intPtr(88), Priority: models.PriorityHigh,
		MatchReasoning: "strong overlap", Status: models.MatchStatusNew,
	}))

	got, err := storage.GetMatch(ctx, "user-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusShortlisted, got.Status)
	assert.Equal(t, 62, got.SemanticScore)
	require.NotNil(t, got.ClaudeScore)
	assert.Equal(t, 88, *got.ClaudeScore)
	assert.Equal(t, models.PriorityHigh, got.Priority)
}

func TestUpsertMatchKeepsAnalysisWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 50,
		ClaudeScore: intPtr(75), Priority: models.PriorityMedium,
		MatchReasoning: "good fit",
	}))

	// A stage-1-only re-run carries no analysis; existing analysis survives.
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 58,
	}))

	got, err := storage.GetMatch(ctx, "user-1", "job-1")
	require.NoError(t, err)
	require.NotNil(t, got.ClaudeScore)
	assert.Equal(t, 75, *got.ClaudeScore)
	assert.Equal(t, "good fit", got.MatchReasoning)
}

func TestUpsertMatchKeepsReasoningWithoutScore(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 60,
	}))

	// A degraded analysis carries reasoning but no score.
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-1", SemanticScore: 60,
		MatchReasoning: "analysis unavailable",
	}))

	got, err := storage.GetMatch(ctx, "user-1", "job-1")
	require.NoError(t, err)
	assert.Nil(t, got.ClaudeScore)
	assert.Equal(t, "analysis unavailable", got.MatchReasoning)
}

func TestListMatchesOrdersByEffectiveScore(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-a", SemanticScore: 90,
	}))
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-b", SemanticScore: 40, ClaudeScore: intPtr(95),
		MatchReasoning: "excellent",
	}))
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-2", JobID: "job-a", SemanticScore: 99,
	}))

	got, err := storage.ListMatches(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-b", got[0].JobID)
	assert.Equal(t, "job-a", got[1].JobID)
}

func TestMatchedJobIDs(t *testing.T) {
	db := newTestDB(t)
	storage := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-1", JobID: "job-a", SemanticScore: 30,
	}))
	require.NoError(t, storage.UpsertUserJobMatch(ctx, &models.UserJobMatch{
		UserID: "user-2", JobID: "job-b", SemanticScore: 30,
	}))

	ids, err := storage.MatchedJobIDs(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ids["job-a"])
	assert.False(t, ids["job-b"])
}
