package matching

import (
	"sort"
	"time"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
)

// JobRef is the lightweight handle a run carries between fetching and
// chunk processing; full rows are loaded one chunk at a time.
type JobRef struct {
	ID             string
	DiscoveredDate time.Time
}

// Chunk is one processing unit of a matching run: the jobs discovered on a
// single day. Days are processed newest first so fresh postings surface
// before the backlog.
type Chunk struct {
	Day  time.Time
	Refs []JobRef
}

// BuildChunks groups job refs into day buckets by discovery date, newest
// day first. Oversized days are split so a single chunk never exceeds
// maxSize.
func BuildChunks(refs []JobRef, maxSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = common.DefaultChunkMaxSize
	}

	byDay := make(map[time.Time][]JobRef)
	for _, ref := range refs {
		day := ref.DiscoveredDate.UTC().Truncate(24 * time.Hour)
		byDay[day] = append(byDay[day], ref)
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	var chunks []Chunk
	for _, day := range days {
		dayRefs := byDay[day]
		for offset := 0; offset < len(dayRefs); offset += maxSize {
			end := offset + maxSize
			if end > len(dayRefs) {
				end = len(dayRefs)
			}
			chunks = append(chunks, Chunk{Day: day, Refs: dayRefs[offset:end]})
		}
	}
	return chunks
}

// AnalyzeQuota returns how many semantic survivors of a chunk go to
// stage-2 analysis: a quarter of the chunk, floored at the minimum so
// small chunks still get analyzed and capped to bound cost.
func AnalyzeQuota(chunkSize int) int {
	quota := (chunkSize + 3) / 4
	if quota < common.DefaultAnalyzeMinPerChunk {
		quota = common.DefaultAnalyzeMinPerChunk
	}
	if quota > common.DefaultAnalyzeMaxPerChunk {
		quota = common.DefaultAnalyzeMaxPerChunk
	}
	if quota > chunkSize {
		quota = chunkSize
	}
	return quota
}
