package interfaces

import (
	"context"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// SourceAdapter is implemented once per external job catalog. Adapters
// encapsulate their own URLs, headers and query parameters; the only
// contract is SearchCriteria semantics, including the client-side country
// post-filter for upstreams that ignore location constraints.
type SourceAdapter interface {
	// Name returns the adapter's stable identifier (lowercase).
	Name() string

	// Search executes one search. Failures are returned as *models.SourceError.
	// Partial batch failures return partial results plus warnings.
	Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error)

	// QuotaPolicy reports the adapter's declared budget and, when the
	// upstream exposes it, the current remaining count.
	QuotaPolicy() models.QuotaPolicy
}
