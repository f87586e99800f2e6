package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 10 << 20

// httpClient is the shared rate-limited HTTP layer under every adapter.
// The limiter spreads an adapter's request budget evenly over its quota
// period so a burst of combinations cannot exhaust it at once.
type httpClient struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newHTTPClient(source string, quota models.QuotaPolicy, logger arbor.ILogger) *httpClient {
	limit := rate.Inf
	burst := 1
	if quota.RequestsPerPeriod > 0 && quota.Period > 0 {
		limit = rate.Limit(float64(quota.RequestsPerPeriod) / quota.Period.Seconds())
		burst = quota.RequestsPerPeriod
		if burst > 10 {
			burst = 10
		}
	}
	return &httpClient{
		source:  source,
		client:  &http.Client{Timeout: common.DefaultSourceTimeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// getJSON performs a rate-limited GET and decodes the JSON response into
// out. Transient and rate-limited failures are retried with exponential
// backoff; other failures return immediately as tagged source errors.
func (c *httpClient) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	var lastErr error
	delay := common.DefaultSourceRetryBase

	for attempt := 0; attempt <= common.DefaultSourceRetryCount; attempt++ {
		if attempt > 0 {
			c.logger.Warn().
				Err(lastErr).
				Str("source", c.source).
				Int("attempt", attempt).
				Msg("Retrying source request")
			select {
			case <-ctx.Done():
				return models.NewSourceError(c.source, models.SourceErrorTransient, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
			if delay > common.DefaultSourceRetryCap {
				delay = common.DefaultSourceRetryCap
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return models.NewSourceError(c.source, models.SourceErrorTransient, err)
		}

		lastErr = c.doOnce(ctx, url, headers, out)
		if lastErr == nil {
			return nil
		}
		if srcErr, ok := lastErr.(*models.SourceError); ok && !srcErr.Retryable {
			return lastErr
		}
	}
	return lastErr
}

func (c *httpClient) doOnce(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.NewSourceError(c.source, models.SourceErrorPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.NewSourceError(c.source, models.SourceErrorTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.NewSourceError(c.source, models.SourceErrorTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return models.NewSourceError(c.source, models.SourceErrorParse,
			fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *httpClient) classifyStatus(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := fmt.Errorf("unexpected status %d: %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests:
		return models.NewSourceError(c.source, models.SourceErrorRateLimited, err)
	case status == http.StatusPaymentRequired:
		return models.NewSourceError(c.source, models.SourceErrorQuotaExhausted, err)
	case status == http.StatusForbidden:
		// RapidAPI reports an exhausted monthly quota as 403.
		return models.NewSourceError(c.source, models.SourceErrorQuotaExhausted, err)
	case status >= 500:
		return models.NewSourceError(c.source, models.SourceErrorTransient, err)
	default:
		return models.NewSourceError(c.source, models.SourceErrorPermanent, err)
	}
}
