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

const jsearchDefaultBaseURL = "https://jsearch.p.rapidapi.com"

// JSearchAdapter searches the JSearch aggregator on RapidAPI.
type JSearchAdapter struct {
	config common.SourceConfig
	client *httpClient
	logger arbor.ILogger
}

// NewJSearchAdapter creates a JSearch source adapter.
func NewJSearchAdapter(config common.SourceConfig, logger arbor.ILogger) interfaces.SourceAdapter {
	if config.BaseURL == "" {
		config.BaseURL = jsearchDefaultBaseURL
	}
	a := &JSearchAdapter{config: config, logger: logger}
	a.client = newHTTPClient(a.Name(), a.QuotaPolicy(), logger)
	return a
}

func (a *JSearchAdapter) Name() string { return "jsearch" }

func (a *JSearchAdapter) QuotaPolicy() models.QuotaPolicy {
	return quotaFromConfig(a.config)
}

type jsearchResponse struct {
	Status string `json:"status"`
	Data   []struct {
		JobID                  string `json:"job_id"`
		JobTitle               string `json:"job_title"`
		EmployerName           string `json:"employer_name"`
		JobCity                string `json:"job_city"`
		JobCountry             string `json:"job_country"`
		JobDescription         string `json:"job_description"`
		JobApplyLink           string `json:"job_apply_link"`
		JobPostedAtDatetimeUTC string `json:"job_posted_at_datetime_utc"`
		JobIsRemote            bool   `json:"job_is_remote"`
	} `json:"data"`
}

// jsearchWindow maps a resolved window to the provider's date_posted enum.
func jsearchWindow(hours int) (string, int) {
	switch {
	case hours <= 24:
		return "today", 24
	case hours <= 168:
		return "week", 168
	default:
		return "month", 720
	}
}

func (a *JSearchAdapter) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	if criteria.Keyword == "" {
		return nil, models.NewSourceError(a.Name(), models.SourceErrorPermanent,
			fmt.Errorf("keyword is required"))
	}

	datePosted, window := jsearchWindow(resolveWindowHours(criteria.PostedWithinHours))

	query := criteria.Keyword
	if criteria.Location != "" {
		query = query + " in " + criteria.Location
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("date_posted", datePosted)
	params.Set("num_pages", "1")
	if a.config.Country != "" {
		params.Set("country", a.config.Country)
	}
	for _, hint := range criteria.WorkArrangementHint {
		if hint == models.ArrangementRemote {
			params.Set("work_from_home", "true")
		}
	}

	headers := map[string]string{
		"x-rapidapi-key":  a.config.APIKey,
		"x-rapidapi-host": strings.TrimPrefix(a.config.BaseURL, "https://"),
	}

	var resp jsearchResponse
	if err := a.client.getJSON(ctx, a.config.BaseURL+"/search?"+params.Encode(), headers, &resp); err != nil {
		return nil, err
	}

	jobs := make([]models.RawJob, 0, len(resp.Data))
	for _, d := range resp.Data {
		posted, _ := time.Parse(time.RFC3339, d.JobPostedAtDatetimeUTC)
		jobs = append(jobs, models.RawJob{
			ExternalID:  d.JobID,
			Title:       d.JobTitle,
			Company:     d.EmployerName,
			Location:    d.JobCity,
			Country:     normalizeCountry(d.JobCountry),
			Description: d.JobDescription,
			URL:         d.JobApplyLink,
			PostedDate:  posted,
		})
	}

	jobs = ensureExternalIDs(jobs)
	jobs, warnings := filterByCountry(jobs, a.config.Country)

	if criteria.MaxResults > 0 && len(jobs) > criteria.MaxResults {
		jobs = jobs[:criteria.MaxResults]
	}

	a.logger.Debug().
		Str("keyword", criteria.Keyword).
		Int("results", len(jobs)).
		Int("window_hours", window).
		Msg("JSearch search completed")

	return &models.SearchResult{
		Jobs:                jobs,
		QuotaUsed:           1,
		ResolvedWindowHours: window,
		Warnings:            warnings,
	}, nil
}
