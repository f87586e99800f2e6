package matching

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refOn(id string, discovered time.Time) JobRef {
	return JobRef{ID: id, DiscoveredDate: discovered}
}

func TestBuildChunksGroupsByDayNewestFirst(t *testing.T) {
	monday := time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, 8, 19, 14, 30, 0, 0, time.UTC)

	chunks := BuildChunks([]JobRef{
		refOn("job_a", monday),
		refOn("job_b", wednesday),
		refOn("job_c", monday.Add(2*time.Hour)),
	}, 500)

	require.Len(t, chunks, 2)
	assert.Equal(t, wednesday.Truncate(24*time.Hour), chunks[0].Day)
	require.Len(t, chunks[0].Refs, 1)
	assert.Equal(t, "job_b", chunks[0].Refs[0].ID)
	assert.Len(t, chunks[1].Refs, 2)
}

func TestBuildChunksSplitsOversizedDays(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	var refs []JobRef
	for i := 0; i < 7; i++ {
		refs = append(refs, refOn(fmt.Sprintf("job_%d", i), day.Add(time.Duration(i)*time.Minute)))
	}

	chunks := BuildChunks(refs, 3)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Refs, 3)
	assert.Len(t, chunks[1].Refs, 3)
	assert.Len(t, chunks[2].Refs, 1)
	for _, c := range chunks {
		assert.Equal(t, day, c.Day)
	}
}

func TestAnalyzeQuota(t *testing.T) {
	cases := []struct {
		chunkSize int
		want      int
	}{
		{0, 0},
		{3, 3},   // smaller than the floor, analyze everything
		{10, 5},  // floor applies
		{40, 10}, // plain 25%
		{99, 25},
		{300, 50}, // cap applies
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AnalyzeQuota(tc.chunkSize), "chunk size %d", tc.chunkSize)
	}
}
