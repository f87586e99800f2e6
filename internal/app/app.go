package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/handlers"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/services/analyzer"
	"github.com/Inclusist/job-monitor-sub000/internal/services/backfill"
	"github.com/Inclusist/job-monitor-sub000/internal/services/collector"
	"github.com/Inclusist/job-monitor-sub000/internal/services/embeddings"
	"github.com/Inclusist/job-monitor-sub000/internal/services/enrichment"
	"github.com/Inclusist/job-monitor-sub000/internal/services/events"
	"github.com/Inclusist/job-monitor-sub000/internal/services/llm"
	"github.com/Inclusist/job-monitor-sub000/internal/services/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/services/progress"
	"github.com/Inclusist/job-monitor-sub000/internal/services/queries"
	"github.com/Inclusist/job-monitor-sub000/internal/services/scheduler"
	"github.com/Inclusist/job-monitor-sub000/internal/sources"
	"github.com/Inclusist/job-monitor-sub000/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Ingestion
	SourceRegistry   *sources.Registry
	CollectorService interfaces.CollectorService
	BackfillPlanner  interfaces.BackfillPlanner
	QueryService     interfaces.QueryService

	// LLM providers
	ClaudeService interfaces.LLMService
	GeminiService interfaces.LLMService

	// Matching pipeline
	EmbeddingService  interfaces.EmbeddingService
	EnrichmentService interfaces.EnrichmentService
	AnalyzerService   interfaces.AnalyzerService
	ProgressService   interfaces.ProgressService
	MatchingService   interfaces.MatchingService

	// HTTP handlers
	MatchHandler     *handlers.MatchHandler
	QueryHandler     *handlers.QueryHandler
	ProfileHandler   *handlers.ProfileHandler
	SchedulerHandler *handlers.SchedulerHandler
	StatusHandler    *handlers.StatusHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	// The scheduler only publishes ticks; the collector subscribes here so
	// manual triggers and cron ticks share one path.
	if err := app.EventService.Subscribe(interfaces.EventCollectionTriggered, func(ctx context.Context, event interfaces.Event) error {
		return app.CollectorService.RunCycle(ctx)
	}); err != nil {
		return nil, fmt.Errorf("failed to subscribe collector: %w", err)
	}

	// Seed queries registered from files run their backfill on startup.
	if err := app.QueryService.LoadSeedFiles(context.Background(), cfg.Queries.Dir); err != nil {
		logger.Warn().Err(err).Msg("Failed to load seed query files")
	}

	logger.Info().
		Int("sources", len(app.SourceRegistry.All())).
		Msg("Application initialization complete")
	return app, nil
}

// initDatabase initializes the storage layer (Badger).
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(&a.Config.Storage.Badger, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the service graph bottom-up.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	claude, err := llm.NewClaudeService(&a.Config.Claude, a.StorageManager, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Claude service: %w", err)
	}
	a.ClaudeService = claude

	gemini, err := llm.NewGeminiService(&a.Config.Gemini, a.StorageManager, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini service: %w", err)
	}
	a.GeminiService = gemini

	a.EmbeddingService = embeddings.NewService(&a.Config.Embeddings, &a.Config.Gemini, a.StorageManager, a.Logger)
	a.EnrichmentService = enrichment.NewService(a.StorageManager.JobStorage(), a.GeminiService, a.Config.Collector.EnrichWorkers, a.Logger)
	a.AnalyzerService = analyzer.NewService(a.ClaudeService, a.Logger)
	a.ProgressService = progress.NewService(a.Logger)

	a.MatchingService = matching.NewService(
		a.StorageManager,
		a.EmbeddingService,
		a.AnalyzerService,
		a.ProgressService,
		a.EventService,
		&a.Config.Matching,
		a.Config.Collector.BackfillDays,
		a.Logger,
	)

	a.SourceRegistry = sources.NewRegistry(a.Config, a.Logger)
	a.CollectorService = collector.NewService(
		a.StorageManager.JobStorage(),
		a.StorageManager.QueryStorage(),
		a.SourceRegistry,
		a.EnrichmentService,
		a.EventService,
		&a.Config.Collector,
		a.Logger,
	)
	a.BackfillPlanner = backfill.NewPlanner(
		a.StorageManager.JobStorage(),
		a.StorageManager.QueryStorage(),
		a.StorageManager.BackfillStorage(),
		a.SourceRegistry,
		a.EventService,
		a.Config.Collector.BackfillDays,
		a.Logger,
	)
	a.QueryService = queries.NewService(a.StorageManager.QueryStorage(), a.BackfillPlanner, a.Logger)
	a.SchedulerService = scheduler.NewService(a.EventService, &a.Config.Collector, a.Logger)
	return nil
}

// initHandlers builds the HTTP layer over the services.
func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.ProgressService, a.Logger)
	a.MatchHandler = handlers.NewMatchHandler(a.MatchingService, a.StorageManager.MatchStorage(), a.StorageManager.JobStorage(), a.Logger)
	a.QueryHandler = handlers.NewQueryHandler(a.QueryService, a.StorageManager.QueryStorage(), a.Logger)
	a.ProfileHandler = handlers.NewProfileHandler(a.StorageManager.ProfileStorage(), a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.SchedulerService, a.StorageManager, a.Logger)
}

// Close shuts components down in reverse dependency order.
func (a *App) Close(ctx context.Context) {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.MatchingService != nil {
		a.MatchingService.Shutdown(ctx)
	}
	if a.ClaudeService != nil {
		if err := a.ClaudeService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Claude service close failed")
		}
	}
	if a.GeminiService != nil {
		if err := a.GeminiService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Gemini service close failed")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	a.Logger.Info().Msg("Application shut down")
}
