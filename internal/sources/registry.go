package sources

import (
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// Registry holds the enabled source adapters and tracks temporary
// ineligibility after quota exhaustion.
type Registry struct {
	mu            sync.Mutex
	adapters      []interfaces.SourceAdapter
	disabledUntil map[string]time.Time
	logger        arbor.ILogger
}

// NewRegistry builds adapters for every enabled source in config.
func NewRegistry(config *common.Config, logger arbor.ILogger) *Registry {
	r := &Registry{
		disabledUntil: make(map[string]time.Time),
		logger:        logger,
	}

	names := make([]string, 0, len(config.Sources))
	for name := range config.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		src := config.Sources[name]
		if !src.Enabled {
			continue
		}
		var adapter interfaces.SourceAdapter
		switch name {
		case "adzuna":
			adapter = NewAdzunaAdapter(src, logger)
		case "activejobs":
			adapter = NewActiveJobsAdapter(src, logger)
		case "arbeitsagentur":
			adapter = NewArbeitsagenturAdapter(src, logger)
		case "jsearch":
			adapter = NewJSearchAdapter(src, logger)
		default:
			logger.Warn().Str("source", name).Msg("Unknown source in config, skipping")
			continue
		}
		r.adapters = append(r.adapters, adapter)
		logger.Info().Str("source", name).Msg("Source adapter registered")
	}

	return r
}

// All returns every registered adapter regardless of eligibility.
func (r *Registry) All() []interfaces.SourceAdapter {
	return r.adapters
}

// Eligible returns adapters that have quota remaining and are not in a
// quota-exhaustion cool-down.
func (r *Registry) Eligible(now time.Time) []interfaces.SourceAdapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	eligible := make([]interfaces.SourceAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if until, ok := r.disabledUntil[a.Name()]; ok {
			if now.Before(until) {
				continue
			}
			delete(r.disabledUntil, a.Name())
		}
		if !a.QuotaPolicy().HasRemaining() {
			continue
		}
		eligible = append(eligible, a)
	}
	return eligible
}

// DisableUntil marks an adapter ineligible until the given time. Used when
// the upstream reports its quota exhausted.
func (r *Registry) DisableUntil(name string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabledUntil[name] = until
	r.logger.Warn().
		Str("source", name).
		Str("until", until.Format(time.RFC3339)).
		Msg("Source disabled after quota exhaustion")
}
