package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

func TestResolveWindowHoursRoundsUp(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, 720},
		{1, 1},
		{2, 24},
		{24, 24},
		{25, 168},
		{168, 168},
		{200, 336},
		{336, 336},
		{500, 720},
		{720, 720},
		{10000, 720},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveWindowHours(tt.requested), "requested=%d", tt.requested)
	}
}

func TestFallbackExternalIDStable(t *testing.T) {
	posted := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)

	a := fallbackExternalID("Backend Engineer", "Acme", "Berlin", posted)
	b := fallbackExternalID("  backend engineer ", "ACME", "berlin", posted.Add(3*time.Hour))
	assert.Equal(t, a, b, "fallback id must be case, whitespace and time-of-day insensitive")
	assert.Len(t, a, 32)

	c := fallbackExternalID("Backend Engineer", "Acme", "Munich", posted)
	assert.NotEqual(t, a, c)
}

func TestFallbackExternalIDDistinguishesPostedDates(t *testing.T) {
	monday := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

	// The same role re-posted on a later day is a separate listing.
	a := fallbackExternalID("Backend Engineer", "Acme", "Berlin", monday)
	b := fallbackExternalID("Backend Engineer", "Acme", "Berlin", friday)
	assert.NotEqual(t, a, b)

	// A missing posted date still yields a stable id.
	z1 := fallbackExternalID("Backend Engineer", "Acme", "Berlin", time.Time{})
	z2 := fallbackExternalID("Backend Engineer", "Acme", "Berlin", time.Time{})
	assert.Equal(t, z1, z2)
	assert.NotEqual(t, a, z1)
}

func TestEnsureExternalIDsFillsAndDrops(t *testing.T) {
	jobs := ensureExternalIDs([]models.RawJob{
		{ExternalID: "abc", Title: "Engineer"},
		{Title: "Analyst", Company: "Acme"},
		{Company: "NoTitle Inc"},
	})
	assert.Len(t, jobs, 2)
	assert.Equal(t, "abc", jobs[0].ExternalID)
	assert.NotEmpty(t, jobs[1].ExternalID)
	assert.Len(t, jobs[1].ExternalID, 32)
}

func TestFilterByCountry(t *testing.T) {
	jobs, warnings := filterByCountry([]models.RawJob{
		{Title: "A", Country: "de"},
		{Title: "B", Country: "fr"},
		{Title: "C"}, // Unknown country passes
	}, "de")
	assert.Len(t, jobs, 2)
	assert.Len(t, warnings, 1)
}

func TestNormalizeCountry(t *testing.T) {
	assert.Equal(t, "de", normalizeCountry("Germany"))
	assert.Equal(t, "de", normalizeCountry("Deutschland"))
	assert.Equal(t, "de", normalizeCountry("DE"))
	assert.Equal(t, "", normalizeCountry(""))
}
