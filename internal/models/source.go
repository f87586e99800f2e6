package models

import (
	"fmt"
	"time"
)

// SearchCriteria is the explicit request record passed to source adapters.
type SearchCriteria struct {
	Keyword             string   `json:"keyword" validate:"required"`
	Location            string   `json:"location"`
	RadiusKM            int      `json:"radius_km"`           // Adapters may ignore
	PostedWithinHours   int      `json:"posted_within_hours"` // Rounded up to the adapter's nearest supported window
	MaxResults          int      `json:"max_results"`
	WorkArrangementHint []string `json:"work_arrangement_hint,omitempty"`
}

// RawJob is an adapter result before normalization into a Job.
type RawJob struct {
	ExternalID  string    `json:"external_id"` // Empty when upstream has no identifier
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Country     string    `json:"country"` // Lowercased ISO-3166-1 alpha-2 when known
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PostedDate  time.Time `json:"posted_date"`
}

// SearchResult is the envelope returned by an adapter search, including
// the window the adapter actually applied after rounding.
type SearchResult struct {
	Jobs                []RawJob `json:"jobs"`
	QuotaUsed           int      `json:"quota_used"`
	ResolvedWindowHours int      `json:"resolved_window_hours"`
	Warnings            []string `json:"warnings,omitempty"` // Partial batch failures
}

// QuotaPolicy declares an adapter's request budget. Remaining is -1 when
// the upstream does not expose it.
type QuotaPolicy struct {
	RequestsPerPeriod    int           `json:"requests_per_period"`
	Period               time.Duration `json:"period"`
	ResultsPerRequestMax int           `json:"results_per_request_max"`
	Remaining            int           `json:"remaining"`
}

// HasRemaining reports whether the adapter may issue another request.
func (q QuotaPolicy) HasRemaining() bool {
	return q.Remaining != 0
}

// SourceErrorKind classifies adapter failures.
type SourceErrorKind string

const (
	SourceErrorTransient      SourceErrorKind = "transient"
	SourceErrorRateLimited    SourceErrorKind = "rate_limited"
	SourceErrorQuotaExhausted SourceErrorKind = "quota_exhausted"
	SourceErrorPermanent      SourceErrorKind = "permanent"
	SourceErrorParse          SourceErrorKind = "parse"
)

// SourceError is the tagged error returned from every adapter call.
type SourceError struct {
	Source    string
	Kind      SourceErrorKind
	Retryable bool
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError builds a SourceError with retryability derived from kind.
func NewSourceError(source string, kind SourceErrorKind, err error) *SourceError {
	return &SourceError{
		Source:    source,
		Kind:      kind,
		Retryable: kind == SourceErrorTransient || kind == SourceErrorRateLimited,
		Err:       err,
	}
}
