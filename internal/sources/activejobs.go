package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

const activeJobsDefaultBaseURL = "https://active-jobs-db.p.rapidapi.com"

// ActiveJobsAdapter searches the Active Jobs DB on RapidAPI, which indexes
// postings scraped directly from company ATS boards.
type ActiveJobsAdapter struct {
	config common.SourceConfig
	client *httpClient
	logger arbor.ILogger
}

// NewActiveJobsAdapter creates an Active Jobs DB source adapter.
func NewActiveJobsAdapter(config common.SourceConfig, logger arbor.ILogger) interfaces.SourceAdapter {
	if config.BaseURL == "" {
		config.BaseURL = activeJobsDefaultBaseURL
	}
	a := &ActiveJobsAdapter{config: config, logger: logger}
	a.client = newHTTPClient(a.Name(), a.QuotaPolicy(), logger)
	return a
}

func (a *ActiveJobsAdapter) Name() string { return "activejobs" }

func (a *ActiveJobsAdapter) QuotaPolicy() models.QuotaPolicy {
	return quotaFromConfig(a.config)
}

type activeJobsEntry struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Organization     string   `json:"organization"`
	LocationsDerived []string `json:"locations_derived"`
	CountriesDerived []string `json:"countries_derived"`
	DatePosted       string   `json:"date_posted"`
	URL              string   `json:"url"`
	DescriptionText  string   `json:"description_text"`
}

func (a *ActiveJobsAdapter) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	if criteria.Keyword == "" {
		return nil, models.NewSourceError(a.Name(), models.SourceErrorPermanent,
			fmt.Errorf("keyword is required"))
	}

	// The upstream exposes fixed-window endpoints; pick the narrowest one
	// covering the request.
	window := resolveWindowHours(criteria.PostedWithinHours)
	endpoint := "/active-ats-7d"
	switch {
	case window <= 24:
		endpoint = "/active-ats-24h"
	case window <= 168:
		endpoint = "/active-ats-7d"
	default:
		window = 720
		endpoint = "/active-ats-expired"
	}

	limit := criteria.MaxResults
	if limit <= 0 || limit > a.config.ResultsPerRequestMax {
		limit = a.config.ResultsPerRequestMax
	}
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("title_filter", fmt.Sprintf("%q", criteria.Keyword))
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("description_type", "text")
	if criteria.Location != "" {
		params.Set("location_filter", fmt.Sprintf("%q", criteria.Location))
	}

	headers := map[string]string{
		"x-rapidapi-key":  a.config.APIKey,
		"x-rapidapi-host": strings.TrimPrefix(a.config.BaseURL, "https://"),
	}

	var entries []activeJobsEntry
	if err := a.client.getJSON(ctx, a.config.BaseURL+endpoint+"?"+params.Encode(), headers, &entries); err != nil {
		return nil, err
	}

	jobs := make([]models.RawJob, 0, len(entries))
	for _, e := range entries {
		posted, _ := time.Parse(time.RFC3339, e.DatePosted)
		location := ""
		if len(e.LocationsDerived) > 0 {
			location = e.LocationsDerived[0]
		}
		country := ""
		if len(e.CountriesDerived) > 0 {
			country = normalizeCountry(e.CountriesDerived[0])
		}
		jobs = append(jobs, models.RawJob{
			ExternalID:  e.ID,
			Title:       e.Title,
			Company:     e.Organization,
			Location:    location,
			Country:     country,
			Description: e.DescriptionText,
			URL:         e.URL,
			PostedDate:  posted,
		})
	}

	jobs = ensureExternalIDs(jobs)
	jobs, warnings := filterByCountry(jobs, a.config.Country)

	a.logger.Debug().
		Str("keyword", criteria.Keyword).
		Int("results", len(jobs)).
		Int("window_hours", window).
		Msg("Active Jobs DB search completed")

	return &models.SearchResult{
		Jobs:                jobs,
		QuotaUsed:           1,
		ResolvedWindowHours: window,
		Warnings:            warnings,
	}, nil
}
