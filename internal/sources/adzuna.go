package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

const adzunaDefaultBaseURL = "https://api.adzuna.com/v1/api"

// AdzunaAdapter searches the Adzuna aggregator API.
type AdzunaAdapter struct {
	config common.SourceConfig
	client *httpClient
	logger arbor.ILogger
}

// NewAdzunaAdapter creates an Adzuna source adapter.
func NewAdzunaAdapter(config common.SourceConfig, logger arbor.ILogger) interfaces.SourceAdapter {
	if config.BaseURL == "" {
		config.BaseURL = adzunaDefaultBaseURL
	}
	a := &AdzunaAdapter{config: config, logger: logger}
	a.client = newHTTPClient(a.Name(), a.QuotaPolicy(), logger)
	return a
}

func (a *AdzunaAdapter) Name() string { return "adzuna" }

func (a *AdzunaAdapter) QuotaPolicy() models.QuotaPolicy {
	return quotaFromConfig(a.config)
}

type adzunaResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Company struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string   `json:"display_name"`
			Area        []string `json:"area"`
		} `json:"location"`
		Description string `json:"description"`
		RedirectURL string `json:"redirect_url"`
		Created     string `json:"created"`
	} `json:"results"`
}

func (a *AdzunaAdapter) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	if criteria.Keyword == "" {
		return nil, models.NewSourceError(a.Name(), models.SourceErrorPermanent,
			fmt.Errorf("keyword is required"))
	}

	window := resolveWindowHours(criteria.PostedWithinHours)
	maxDaysOld := window / 24
	if maxDaysOld < 1 {
		maxDaysOld = 1
	}

	perPage := criteria.MaxResults
	if perPage <= 0 || perPage > a.config.ResultsPerRequestMax {
		perPage = a.config.ResultsPerRequestMax
	}
	if perPage <= 0 {
		perPage = 50
	}

	country := a.config.Country
	if country == "" {
		country = "de"
	}

	params := url.Values{}
	params.Set("app_id", a.config.AppID)
	params.Set("app_key", a.config.APIKey)
	params.Set("what", criteria.Keyword)
	params.Set("results_per_page", fmt.Sprintf("%d", perPage))
	params.Set("max_days_old", fmt.Sprintf("%d", maxDaysOld))
	params.Set("content-type", "application/json")
	if criteria.Location != "" {
		params.Set("where", criteria.Location)
		if criteria.RadiusKM > 0 {
			params.Set("distance", fmt.Sprintf("%d", criteria.RadiusKM))
		}
	}

	endpoint := fmt.Sprintf("%s/jobs/%s/search/1?%s", a.config.BaseURL, country, params.Encode())

	var resp adzunaResponse
	if err := a.client.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	jobs := make([]models.RawJob, 0, len(resp.Results))
	for _, r := range resp.Results {
		posted, _ := time.Parse(time.RFC3339, r.Created)
		jobs = append(jobs, models.RawJob{
			ExternalID:  r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Country:     normalizeCountry(adzunaCountry(r.Location.Area, country)),
			Description: r.Description,
			URL:         r.RedirectURL,
			PostedDate:  posted,
		})
	}

	jobs = ensureExternalIDs(jobs)
	jobs, warnings := filterByCountry(jobs, country)

	a.logger.Debug().
		Str("keyword", criteria.Keyword).
		Int("results", len(jobs)).
		Int("window_hours", window).
		Msg("Adzuna search completed")

	return &models.SearchResult{
		Jobs:                jobs,
		QuotaUsed:           1,
		ResolvedWindowHours: window,
		Warnings:            warnings,
	}, nil
}

// adzunaCountry prefers the area hierarchy's top entry, falling back to
// the configured market.
func adzunaCountry(area []string, configured string) string {
	if len(area) > 0 {
		return area[0]
	}
	return configured
}

// quotaFromConfig builds the declared budget for an adapter.
func quotaFromConfig(config common.SourceConfig) models.QuotaPolicy {
	period := time.Duration(config.PeriodMinutes) * time.Minute
	if period <= 0 {
		period = 24 * time.Hour
	}
	return models.QuotaPolicy{
		RequestsPerPeriod:    config.RequestsPerPeriod,
		Period:               period,
		ResultsPerRequestMax: config.ResultsPerRequestMax,
		Remaining:            -1,
	}
}
