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

const (
	arbeitsagenturDefaultBaseURL = "https://rest.arbeitsagentur.de/jobboerse/jobsuche-service"

	// Public client key published by the Bundesagentur für Arbeit for its
	// job search API; no registration required.
	arbeitsagenturPublicKey = "jobboerse-jobsuche"
)

// ArbeitsagenturAdapter searches the German Federal Employment Agency's
// public job board.
type ArbeitsagenturAdapter struct {
	config common.SourceConfig
	client *httpClient
	logger arbor.ILogger
}

// NewArbeitsagenturAdapter creates a Bundesagentur für Arbeit source adapter.
func NewArbeitsagenturAdapter(config common.SourceConfig, logger arbor.ILogger) interfaces.SourceAdapter {
	if config.BaseURL == "" {
		config.BaseURL = arbeitsagenturDefaultBaseURL
	}
	if config.APIKey == "" {
		config.APIKey = arbeitsagenturPublicKey
	}
	if config.Country == "" {
		config.Country = "de"
	}
	a := &ArbeitsagenturAdapter{config: config, logger: logger}
	a.client = newHTTPClient(a.Name(), a.QuotaPolicy(), logger)
	return a
}

func (a *ArbeitsagenturAdapter) Name() string { return "arbeitsagentur" }

func (a *ArbeitsagenturAdapter) QuotaPolicy() models.QuotaPolicy {
	return quotaFromConfig(a.config)
}

type arbeitsagenturResponse struct {
	Stellenangebote []struct {
		Refnr       string `json:"refnr"`
		Titel       string `json:"titel"`
		Beruf       string `json:"beruf"`
		Arbeitgeber string `json:"arbeitgeber"`
		Arbeitsort  struct {
			Ort    string `json:"ort"`
			Region string `json:"region"`
			Land   string `json:"land"`
		} `json:"arbeitsort"`
		AktuelleVeroeffentlichungsdatum string `json:"aktuelleVeroeffentlichungsdatum"`
		ExterneURL                      string `json:"externeUrl"`
	} `json:"stellenangebote"`
	MaxErgebnisse int `json:"maxErgebnisse"`
}

func (a *ArbeitsagenturAdapter) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	if criteria.Keyword == "" {
		return nil, models.NewSourceError(a.Name(), models.SourceErrorPermanent,
			fmt.Errorf("keyword is required"))
	}

	// veroeffentlichtseit takes days.
	window := resolveWindowHours(criteria.PostedWithinHours)
	sinceDays := window / 24
	if sinceDays < 1 {
		sinceDays = 1
	}

	size := criteria.MaxResults
	if size <= 0 || size > a.config.ResultsPerRequestMax {
		size = a.config.ResultsPerRequestMax
	}
	if size <= 0 {
		size = 100
	}

	params := url.Values{}
	params.Set("was", criteria.Keyword)
	params.Set("veroeffentlichtseit", fmt.Sprintf("%d", sinceDays))
	params.Set("size", fmt.Sprintf("%d", size))
	params.Set("page", "1")
	if criteria.Location != "" {
		params.Set("wo", criteria.Location)
		if criteria.RadiusKM > 0 {
			params.Set("umkreis", fmt.Sprintf("%d", criteria.RadiusKM))
		}
	}

	headers := map[string]string{"X-API-Key": a.config.APIKey}

	var resp arbeitsagenturResponse
	if err := a.client.getJSON(ctx, a.config.BaseURL+"/pc/v4/jobs?"+params.Encode(), headers, &resp); err != nil {
		return nil, err
	}

	jobs := make([]models.RawJob, 0, len(resp.Stellenangebote))
	for _, s := range resp.Stellenangebote {
		posted, _ := time.Parse("2006-01-02", s.AktuelleVeroeffentlichungsdatum)
		title := s.Titel
		if title == "" {
			title = s.Beruf
		}
		location := s.Arbeitsort.Ort
		if location != "" && s.Arbeitsort.Region != "" {
			location = location + ", " + s.Arbeitsort.Region
		}
		jobs = append(jobs, models.RawJob{
			ExternalID: s.Refnr,
			Title:      title,
			Company:    s.Arbeitgeber,
			Location:   location,
			Country:    normalizeCountry(s.Arbeitsort.Land),
			URL:        s.ExterneURL,
			PostedDate: posted,
		})
	}

	jobs = ensureExternalIDs(jobs)
	jobs, warnings := filterByCountry(jobs, a.config.Country)

	a.logger.Debug().
		Str("keyword", criteria.Keyword).
		Int("results", len(jobs)).
		Int("window_hours", window).
		Msg("Arbeitsagentur search completed")

	return &models.SearchResult{
		Jobs:                jobs,
		QuotaUsed:           1,
		ResolvedWindowHours: window,
		Warnings:            warnings,
	}, nil
}
