package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
	"github.com/Inclusist/job-monitor-sub000/internal/services/matcher"
)

// Service orchestrates the per-user two-stage matching pipeline: semantic
// cosine filtering over cached embeddings, then LLM analysis of the top
// survivors, processed in day-sized chunks newest first.
type Service struct {
	storage      interfaces.StorageManager
	embedder     interfaces.EmbeddingService
	analyzer     interfaces.AnalyzerService
	progress     interfaces.ProgressService
	events       interfaces.EventService
	config       *common.MatchingConfig
	backfillDays int
	registry     *runRegistry
	logger       arbor.ILogger
}

// NewService creates the matching engine.
func NewService(
	storage interfaces.StorageManager,
	embedder interfaces.EmbeddingService,
	analyzerService interfaces.AnalyzerService,
	progressService interfaces.ProgressService,
	events interfaces.EventService,
	config *common.MatchingConfig,
	backfillDays int,
	logger arbor.ILogger,
) interfaces.MatchingService {
	if backfillDays <= 0 {
		backfillDays = common.DefaultBackfillDays
	}
	return &Service{
		storage:      storage,
		embedder:     embedder,
		analyzer:     analyzerService,
		progress:     progressService,
		events:       events,
		config:       config,
		backfillDays: backfillDays,
		registry:     newRunRegistry(),
		logger:       logger,
	}
}

// StartMatching launches a run in the background. A second call while a
// run is active is a no-op returning the current progress.
func (s *Service) StartMatching(ctx context.Context, userID string, opts interfaces.MatchOptions) (*models.ProgressEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if s.registry.get(userID) != nil {
		return s.progress.Get(userID), nil
	}

	profile, err := s.storage.ProfileStorage().GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cannot start matching without a CV profile for user %s: %w", userID, err)
	}
	queries, err := s.storage.QueryStorage().GetUserQueries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load search queries for user %s: %w", userID, err)
	}

	// The run timeout is soft: overruns warn and continue. The cancel func
	// exists for Shutdown only.
	runCtx, cancel := context.WithCancel(context.Background())
	state := &runState{
		userID: userID,
		runID:  common.NewRunID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !s.registry.acquire(userID, state) {
		cancel()
		return s.progress.Get(userID), nil
	}

	run := &activeRun{
		svc:     s,
		state:   state,
		profile: profile,
		filter:  s.buildFilter(queries),
		opts:    opts,
	}
	event := run.emit(models.StageInitializing, 0, "matching run started")

	s.logger.Info().
		Str("user_id", userID).
		Str("run_id", state.runID).
		Bool("force_reanalyze", opts.ForceReanalyze).
		Bool("latest_day_only", opts.LatestDayOnly).
		Msg("Matching run started")

	go run.execute(runCtx)

	return event, nil
}

// GetStatus returns the latest progress event for the user.
func (s *Service) GetStatus(userID string) *models.ProgressEvent {
	return s.progress.Get(userID)
}

// Cancel requests a cooperative cancel. Returns false when no run is
// active for the user.
func (s *Service) Cancel(userID string) bool {
	state := s.registry.get(userID)
	if state == nil {
		return false
	}
	state.requestCancel()
	s.logger.Info().Str("user_id", userID).Str("run_id", state.runID).Msg("Matching run cancel requested")
	return true
}

// Shutdown cancels all active runs and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) {
	states := s.registry.all()
	for _, state := range states {
		state.requestCancel()
		state.cancel()
	}
	for _, state := range states {
		select {
		case <-state.done:
		case <-ctx.Done():
			s.logger.Warn().Str("user_id", state.userID).Msg("Shutdown timed out waiting for matching run")
			return
		}
	}
}

func (s *Service) softTimeout() time.Duration {
	if s.config.RunSoftTimeout != "" {
		if d, err := time.ParseDuration(s.config.RunSoftTimeout); err == nil && d > 0 {
			return d
		}
	}
	return common.DefaultRunSoftTimeout
}

// buildFilter derives the user's hard constraints from their queries.
func (s *Service) buildFilter(queries []*models.UserSearchQuery) interfaces.JobFilter {
	filter := interfaces.JobFilter{
		Since: time.Now().UTC().AddDate(0, 0, -s.backfillDays),
	}

	locationSeen := make(map[string]bool)
	arrangementSeen := make(map[string]bool)
	for _, q := range queries {
		loc := strings.TrimSpace(q.Location)
		if loc != "" && !locationSeen[strings.ToLower(loc)] {
			locationSeen[strings.ToLower(loc)] = true
			filter.Locations = append(filter.Locations, loc)
		}
		if len(q.WorkArrangements) == 0 {
			// No restriction on this query means any arrangement passes.
			filter.AcceptsRemote = true
		}
		for _, wa := range q.WorkArrangements {
			wa = strings.ToLower(strings.TrimSpace(wa))
			if wa == "" {
				continue
			}
			arrangementSeen[wa] = true
			if wa == models.ArrangementRemote {
				filter.AcceptsRemote = true
			}
		}
	}

	// Only constrain arrangements when every query restricts them.
	restrictsAll := len(arrangementSeen) > 0
	for _, q := range queries {
		if len(q.WorkArrangements) == 0 {
			restrictsAll = false
			break
		}
	}
	if restrictsAll {
		for wa := range arrangementSeen {
			filter.WorkArrangements = append(filter.WorkArrangements, wa)
		}
		sort.Strings(filter.WorkArrangements)
	}

	filter.Countries = countriesFromLocations(filter.Locations)
	return filter
}

// activeRun carries the mutable state of one run through its stages.
type activeRun struct {
	svc     *Service
	state   *runState
	profile *models.CVProfile
	filter  interfaces.JobFilter
	opts    interfaces.MatchOptions

	profileVector []float32

	countersMu   sync.Mutex
	matchesFound int
	jobsAnalyzed int
	chunksDone   int
	totalChunks  int
}

// execute runs the pipeline stages. Store errors are fatal to the run;
// per-job errors are logged and skipped.
func (r *activeRun) execute(ctx context.Context) {
	softTimeout := r.svc.softTimeout()
	softTimer := time.AfterFunc(softTimeout, func() { r.warnOverrun(softTimeout) })
	defer softTimer.Stop()
	defer close(r.state.done)
	defer r.svc.registry.release(r.state.userID)
	defer func() {
		if rec := recover(); rec != nil {
			r.svc.logger.Error().
				Str("user_id", r.state.userID).
				Str("run_id", r.state.runID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("Matching run panicked")
			r.emit(models.StageError, 0, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := r.run(ctx); err != nil {
		if errors.Is(err, errRunCancelled) {
			r.emit(models.StageCancelled, 0, "run cancelled")
			return
		}
		r.svc.logger.Error().
			Err(err).
			Str("user_id", r.state.userID).
			Str("run_id", r.state.runID).
			Msg("Matching run failed")
		r.emit(models.StageError, 0, err.Error())
		return
	}
	r.emit(models.StageDone, 100, "matching complete")
	r.svc.logger.Info().
		Str("user_id", r.state.userID).
		Str("run_id", r.state.runID).
		Int("matches_found", r.matchesFound).
		Int("jobs_analyzed", r.jobsAnalyzed).
		Msg("Matching run completed")
}

var errRunCancelled = errors.New("run cancelled")

func (r *activeRun) run(ctx context.Context) error {
	// Stage: load the embedding model and the profile vector.
	r.emit(models.StageLoadingModel, 5, "loading embedding model")
	if err := r.svc.embedder.Warm(ctx); err != nil {
		return fmt.Errorf("embedding model failed to load: %w", err)
	}
	profileVec, err := r.svc.embedder.Embed(ctx, matcher.ProfileText(r.profile))
	if err != nil {
		return fmt.Errorf("failed to embed profile: %w", err)
	}
	r.profileVector = profileVec
	if r.checkCancelled() {
		return errRunCancelled
	}

	// Stage: fetch candidate jobs. Only lightweight refs are kept across
	// the run; full rows load per chunk.
	r.emit(models.StageFetchingJobs, 10, "fetching candidate jobs")
	var refs []JobRef
	err = r.svc.storage.JobStorage().FindJobsForUser(ctx, r.state.userID, r.filter, func(page []*models.Job) error {
		for _, job := range page {
			refs = append(refs, JobRef{ID: job.ID, DiscoveredDate: job.DiscoveredDate})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to fetch candidate jobs: %w", err)
	}

	chunks := BuildChunks(refs, r.svc.config.ChunkMaxSize)
	if r.opts.LatestDayOnly && len(chunks) > 0 {
		latest := chunks[0].Day
		kept := chunks[:0]
		for _, c := range chunks {
			if c.Day.Equal(latest) {
				kept = append(kept, c)
			}
		}
		chunks = kept
	}
	r.totalChunks = len(chunks)

	r.svc.logger.Info().
		Str("user_id", r.state.userID).
		Int("candidates", len(refs)).
		Int("chunks", len(chunks)).
		Msg("Candidate jobs fetched")

	// Chunks run sequentially so results stream newest-day first.
	for _, chunk := range chunks {
		if r.checkCancelled() {
			return errRunCancelled
		}
		if err := r.processChunk(ctx, chunk); err != nil {
			return err
		}
		r.chunksDone++
		r.emit(models.StageAnalyzing, r.chunkProgress(), fmt.Sprintf("chunk %d of %d complete", r.chunksDone, r.totalChunks))
	}

	if r.opts.ForceReanalyze {
		if err := r.reanalyzeExisting(ctx); err != nil {
			return err
		}
	}
	return nil
}

type scoredJob struct {
	job   *models.Job
	score int
}

func (r *activeRun) processChunk(ctx context.Context, chunk Chunk) error {
	// Stage 1: semantic filter.
	r.emit(models.StageSemanticFiltering, r.chunkProgress(), fmt.Sprintf("scoring %d jobs from %s", len(chunk.Refs), chunk.Day.Format("2006-01-02")))

	jobs, err := r.loadChunkJobs(ctx, chunk)
	if err != nil {
		return err
	}

	vectors, err := r.embedChunk(ctx, jobs)
	if err != nil {
		return err
	}

	scored := make([]scoredJob, 0, len(jobs))
	for _, job := range jobs {
		vec, ok := vectors[job.ID]
		if !ok {
			continue
		}
		similarity, err := matcher.Cosine(r.profileVector, vec)
		if err != nil {
			r.svc.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Skipping job with incompatible vector")
			continue
		}
		if score := matcher.Score(similarity); score >= r.svc.config.SemanticThreshold {
			scored = append(scored, scoredJob{job: job, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].job.DiscoveredDate.After(scored[j].job.DiscoveredDate)
	})

	// Persist semantic matches before analysis so a cancel or crash after
	// this point still leaves the stage-1 results queryable.
	r.emit(models.StageSavingMatches, r.chunkProgress(), fmt.Sprintf("saving %d matches", len(scored)))
	for _, sj := range scored {
		match := &models.UserJobMatch{
			UserID:        r.state.userID,
			JobID:         sj.job.ID,
			SemanticScore: sj.score,
			Status:        models.MatchStatusNew,
		}
		if err := r.svc.storage.MatchStorage().UpsertUserJobMatch(ctx, match); err != nil {
			return fmt.Errorf("failed to save match for job %s: %w", sj.job.ID, err)
		}
		r.matchesFound++
	}

	// Stage 2: analyze the top survivors above the analysis threshold.
	quota := AnalyzeQuota(len(scored))
	var toAnalyze []scoredJob
	for _, sj := range scored {
		if len(toAnalyze) >= quota {
			break
		}
		if sj.score >= r.svc.config.LLMThreshold {
			toAnalyze = append(toAnalyze, sj)
		}
	}
	if len(toAnalyze) == 0 {
		return nil
	}
	r.emit(models.StageAnalyzing, r.chunkProgress(), fmt.Sprintf("analyzing %d jobs", len(toAnalyze)))
	return r.analyzePairs(ctx, toAnalyze)
}

// analyzePairs fans the candidates over the LLM worker pool. Workers check
// the cancel flag between pairs; an in-flight analysis always completes
// and persists.
func (r *activeRun) analyzePairs(ctx context.Context, pairs []scoredJob) error {
	workers := r.svc.config.LLMWorkers
	if workers <= 0 {
		workers = common.DefaultLLMWorkers
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	pairCh := make(chan scoredJob)
	errCh := make(chan error, len(pairs))
	var analyzed sync.Map
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range pairCh {
				if err := r.analyzeOne(ctx, pair); err != nil {
					if errors.Is(err, interfaces.ErrStore) {
						errCh <- err
						return
					}
					r.svc.logger.Warn().Err(err).Str("job_id", pair.job.ID).Msg("Pair analysis failed")
					continue
				}
				analyzed.Store(pair.job.ID, true)
			}
		}()
	}

	for _, pair := range pairs {
		if r.state.isCancelled() {
			break
		}
		select {
		case pairCh <- pair:
		case err := <-errCh:
			close(pairCh)
			wg.Wait()
			return err
		}
	}
	close(pairCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if r.state.isCancelled() {
		return errRunCancelled
	}
	return nil
}

func (r *activeRun) analyzeOne(ctx context.Context, pair scoredJob) error {
	result, err := r.svc.analyzer.Analyze(ctx, r.profile, pair.job)
	if err != nil {
		return err
	}

	match := &models.UserJobMatch{
		UserID:        r.state.userID,
		JobID:         pair.job.ID,
		SemanticScore: pair.score,
		Status:        models.MatchStatusNew,
		// Kept even with a nil score: a degraded analysis records
		// "analysis unavailable" on the semantic-only match.
		MatchReasoning: result.Reasoning,
	}
	if result.Score != nil {
		match.ClaudeScore = result.Score
		match.Priority = result.Priority
		match.KeyAlignments = result.Alignments
		match.PotentialGaps = result.Gaps
	}
	if err := r.svc.storage.MatchStorage().UpsertUserJobMatch(ctx, match); err != nil {
		return fmt.Errorf("failed to save analysis for job %s: %w", pair.job.ID, err)
	}
	r.bumpAnalyzed()
	return nil
}

// loadChunkJobs resolves a chunk's refs to full rows. A row deleted since
// the fetch is skipped; store failures abort the run.
func (r *activeRun) loadChunkJobs(ctx context.Context, chunk Chunk) ([]*models.Job, error) {
	jobs := make([]*models.Job, 0, len(chunk.Refs))
	for _, ref := range chunk.Refs {
		job, err := r.svc.storage.JobStorage().GetJob(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				r.svc.logger.Warn().Str("job_id", ref.ID).Msg("Skipping job that vanished since fetch")
				continue
			}
			return nil, fmt.Errorf("failed to load chunk job %s: %w", ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// warnOverrun flags a run that has exceeded the soft timeout. The run
// keeps going; the deadline only surfaces stuck runs.
func (r *activeRun) warnOverrun(timeout time.Duration) {
	r.svc.logger.Warn().
		Str("user_id", r.state.userID).
		Str("run_id", r.state.runID).
		Dur("timeout", timeout).
		Msg("Matching run exceeded soft timeout, continuing")

	latest := r.svc.progress.Get(r.state.userID)
	if latest == nil || latest.Stage.IsTerminal() {
		return
	}
	warned := *latest
	warned.Message = fmt.Sprintf("run exceeded soft timeout of %s, continuing", timeout)
	warned.UpdatedAt = time.Now().UTC()
	r.svc.progress.Set(r.state.userID, &warned)
	r.svc.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventMatchProgress,
		Payload: &warned,
	})
}

// reanalyzeExisting re-runs stage 2 over matches that already exist for
// the user, refreshing stale analysis.
func (r *activeRun) reanalyzeExisting(ctx context.Context) error {
	matches, err := r.svc.storage.MatchStorage().ListMatches(ctx, r.state.userID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to list matches for re-analysis: %w", err)
	}

	var pairs []scoredJob
	for _, m := range matches {
		if m.SemanticScore < r.svc.config.LLMThreshold {
			continue
		}
		job, err := r.svc.storage.JobStorage().GetJob(ctx, m.JobID)
		if err != nil {
			r.svc.logger.Warn().Err(err).Str("job_id", m.JobID).Msg("Skipping re-analysis of missing job")
			continue
		}
		pairs = append(pairs, scoredJob{job: job, score: m.SemanticScore})
	}
	if len(pairs) == 0 {
		return nil
	}

	r.emit(models.StageAnalyzing, r.chunkProgress(), fmt.Sprintf("re-analyzing %d existing matches", len(pairs)))
	return r.analyzePairs(ctx, pairs)
}

// embedChunk returns a vector per job, preferring the cache and embedding
// the misses in one batch.
func (r *activeRun) embedChunk(ctx context.Context, jobs []*models.Job) (map[string][]float32, error) {
	modelVersion := r.svc.embedder.ModelVersion()
	embStore := r.svc.storage.EmbeddingStorage()

	vectors := make(map[string][]float32, len(jobs))
	var missing []*models.Job
	for _, job := range jobs {
		vec, err := embStore.GetEmbedding(ctx, job.ID, modelVersion)
		if err == nil {
			vectors[job.ID] = vec
			continue
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("embedding cache lookup failed: %w", err)
		}
		missing = append(missing, job)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	texts := make([]string, len(missing))
	for i, job := range missing {
		texts[i] = matcher.JobText(job)
	}
	embedded, err := r.svc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d jobs: %w", len(missing), err)
	}
	for i, job := range missing {
		vectors[job.ID] = embedded[i]
		saveErr := embStore.SaveEmbedding(ctx, &models.JobEmbedding{
			JobID:        job.ID,
			ModelVersion: modelVersion,
			Vector:       embedded[i],
		})
		if saveErr != nil {
			// Cache misses are recomputable; a failed write is not fatal.
			r.svc.logger.Warn().Err(saveErr).Str("job_id", job.ID).Msg("Failed to cache embedding")
		}
	}
	return vectors, nil
}

func (r *activeRun) checkCancelled() bool {
	return r.state.isCancelled()
}

// chunkProgress maps chunk completion onto the 15-95 band; the stages
// before the first chunk own 0-15 and the terminal emit owns 100.
func (r *activeRun) chunkProgress() int {
	if r.totalChunks == 0 {
		return 15
	}
	return 15 + r.chunksDone*80/r.totalChunks
}

func (r *activeRun) bumpAnalyzed() {
	r.countersMu.Lock()
	r.jobsAnalyzed++
	r.countersMu.Unlock()
}

func (r *activeRun) emit(stage models.MatchStage, pct int, message string) *models.ProgressEvent {
	event := &models.ProgressEvent{
		UserID:          r.state.userID,
		Status:          statusForStage(stage),
		Stage:           stage,
		Progress:        pct,
		MatchesFound:    r.matchesFound,
		JobsAnalyzed:    r.jobsAnalyzed,
		ChunksCompleted: r.chunksDone,
		TotalChunks:     r.totalChunks,
		Message:         message,
		UpdatedAt:       time.Now().UTC(),
	}
	if stage == models.StageDone {
		event.Progress = 100
	}
	r.svc.progress.Set(r.state.userID, event)
	r.svc.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventMatchProgress,
		Payload: event,
	})
	return event
}

func statusForStage(stage models.MatchStage) string {
	switch stage {
	case models.StageDone:
		return "done"
	case models.StageError:
		return "error"
	case models.StageCancelled:
		return "cancelled"
	case models.StageIdle:
		return "idle"
	default:
		return "running"
	}
}

// countryNames maps location strings that name a whole country to its
// ISO code, for the remote-job country fallback.
var countryNames = map[string]string{
	"germany":        "de",
	"deutschland":    "de",
	"austria":        "at",
	"switzerland":    "ch",
	"united kingdom": "gb",
	"united states":  "us",
	"france":         "fr",
	"netherlands":    "nl",
}

func countriesFromLocations(locations []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, loc := range locations {
		if code, ok := countryNames[strings.ToLower(strings.TrimSpace(loc))]; ok && !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}
