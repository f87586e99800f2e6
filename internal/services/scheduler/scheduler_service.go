package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// Service drives the recurring collection cycle on a cron schedule.
// Ticks publish collection.triggered synchronously; the collector is
// subscribed to that event by the application wiring, which keeps the
// scheduler free of collection logic.
type Service struct {
	events interfaces.EventService
	config *common.CollectorConfig
	cron   *cron.Cron
	logger arbor.ILogger

	mu           sync.Mutex // Protects isProcessing
	isProcessing bool
	running      bool
}

// NewService creates the scheduler.
func NewService(events interfaces.EventService, config *common.CollectorConfig, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		events: events,
		config: config,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the collection tick and starts the cron loop.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	spec := s.config.CronSpec()
	if _, err := s.cron.AddFunc(spec, s.runScheduledCollection); err != nil {
		return fmt.Errorf("failed to add collection cron job: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("cron_expr", spec).
		Int("interval_minutes", s.config.IntervalMinutes).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop. A tick already in flight finishes.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the cron loop is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// TriggerCollectionNow runs one collection cycle out of schedule.
func (s *Service) TriggerCollectionNow() error {
	s.logger.Info().Msg("Manual collection trigger requested")
	return s.events.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventCollectionTriggered,
	})
}

// runScheduledCollection is the cron tick. Overlapping ticks are skipped
// so a slow cycle never stacks up behind itself.
func (s *Service) runScheduledCollection() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled collection")
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous collection cycle still running, skipping tick")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("Scheduled collection cycle triggered")
	if err := s.events.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventCollectionTriggered,
	}); err != nil {
		s.logger.Error().Err(err).Msg("Collection event publish failed")
	}
}
