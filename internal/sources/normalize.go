package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// supportedWindowHours are the freshness windows adapters can actually
// serve; a requested window is rounded up to the next one.
var supportedWindowHours = []int{1, 24, 168, 336, 720}

// resolveWindowHours rounds a requested posted-within window up to the
// nearest supported value. Zero or out-of-range requests resolve to the
// widest window.
func resolveWindowHours(requested int) int {
	if requested <= 0 {
		return supportedWindowHours[len(supportedWindowHours)-1]
	}
	for _, w := range supportedWindowHours {
		if requested <= w {
			return w
		}
	}
	return supportedWindowHours[len(supportedWindowHours)-1]
}

// fallbackExternalID derives a stable identifier for listings the upstream
// returns without one, so re-fetches still deduplicate. SHA-256 over
// title|company|location|posted_date, truncated to 32 hex characters. The
// posted date keeps re-postings of the same role on later days distinct.
func fallbackExternalID(title, company, location string, posted time.Time) string {
	date := ""
	if !posted.IsZero() {
		date = posted.UTC().Format("2006-01-02")
	}
	canonical := strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(company)) + "|" +
		strings.ToLower(strings.TrimSpace(location)) + "|" +
		date
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:32]
}

// countryCodes maps the country names upstreams return to lowercased
// ISO-3166-1 alpha-2. Unknown names pass through lowercased.
var countryCodes = map[string]string{
	"germany":        "de",
	"deutschland":    "de",
	"austria":        "at",
	"österreich":     "at",
	"switzerland":    "ch",
	"schweiz":        "ch",
	"united kingdom": "gb",
	"great britain":  "gb",
	"united states":  "us",
	"usa":            "us",
	"france":         "fr",
	"netherlands":    "nl",
	"spain":          "es",
	"italy":          "it",
	"poland":         "pl",
}

func normalizeCountry(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	if c == "" {
		return ""
	}
	if code, ok := countryCodes[c]; ok {
		return code
	}
	if len(c) == 2 {
		return c
	}
	return c
}

// filterByCountry drops jobs whose country is known and differs from the
// adapter's configured country. Upstreams occasionally leak neighboring
// markets into localized result sets.
func filterByCountry(jobs []models.RawJob, country string) ([]models.RawJob, []string) {
	if country == "" {
		return jobs, nil
	}
	want := normalizeCountry(country)
	kept := jobs[:0]
	dropped := 0
	for _, j := range jobs {
		if j.Country != "" && j.Country != want {
			dropped++
			continue
		}
		kept = append(kept, j)
	}
	var warnings []string
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("dropped %d results outside country %s", dropped, want))
	}
	return kept, warnings
}

// ensureExternalIDs fills missing identifiers with the content-hash
// fallback and drops rows that have no title to hash on.
func ensureExternalIDs(jobs []models.RawJob) []models.RawJob {
	kept := jobs[:0]
	for _, j := range jobs {
		if j.ExternalID == "" {
			if j.Title == "" {
				continue
			}
			j.ExternalID = fallbackExternalID(j.Title, j.Company, j.Location, j.PostedDate)
		}
		kept = append(kept, j)
	}
	return kept
}
