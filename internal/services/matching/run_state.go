package matching

import (
	"context"
	"sync"
	"sync/atomic"
)

// runState tracks one active matching run. Cancellation is cooperative:
// the flag is checked at sub-step boundaries so in-flight analysis calls
// complete and persist before the run stops. The context is only
// cancelled on process shutdown.
type runState struct {
	userID    string
	runID     string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

func (r *runState) requestCancel() {
	r.cancelled.Store(true)
}

func (r *runState) isCancelled() bool {
	return r.cancelled.Load()
}

// runRegistry holds at most one active run per user.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*runState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runState)}
}

// acquire registers a new run for the user. Returns nil and false when a
// run is already active.
func (r *runRegistry) acquire(userID string, state *runState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, active := r.runs[userID]; active {
		return false
	}
	r.runs[userID] = state
	return true
}

func (r *runRegistry) get(userID string) *runState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[userID]
}

func (r *runRegistry) release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, userID)
}

func (r *runRegistry) all() []*runState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]*runState, 0, len(r.runs))
	for _, s := range r.runs {
		states = append(states, s)
	}
	return states
}
