package queries

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

// validArrangements is the accepted work arrangement vocabulary.
var validArrangements = map[string]bool{
	models.ArrangementOnsite: true,
	models.ArrangementHybrid: true,
	models.ArrangementRemote: true,
}

// Service registers user search queries and triggers backfill planning
// for newly-seen combinations.
type Service struct {
	storage  interfaces.QueryStorage
	planner  interfaces.BackfillPlanner
	logger   arbor.ILogger
	planSync bool // run backfill inline instead of in the background, for tests
}

// NewService creates the query registration service.
func NewService(storage interfaces.QueryStorage, planner interfaces.BackfillPlanner, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		planner: planner,
		logger:  logger,
	}
}

// RegisterUserQueries replaces the user's query set with the cartesian
// product of titles and locations, then schedules backfill for any
// combination that has never been fetched historically.
func (s *Service) RegisterUserQueries(ctx context.Context, userID string, titles, locations, arrangements []string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	titles = cleanList(titles)
	if len(titles) == 0 {
		return fmt.Errorf("at least one title keyword is required")
	}
	locations = cleanList(locations)
	if len(locations) == 0 {
		// No location constraint still produces one row per title.
		locations = []string{""}
	}

	normalized, err := normalizeArrangements(arrangements)
	if err != nil {
		return err
	}

	rows := make([]*models.UserSearchQuery, 0, len(titles)*len(locations))
	for _, title := range titles {
		for _, location := range locations {
			rows = append(rows, &models.UserSearchQuery{
				UserID:           userID,
				TitleKeyword:     title,
				Location:         location,
				WorkArrangements: normalized,
				IsActive:         true,
			})
		}
	}

	if err := s.storage.ReplaceUserQueries(ctx, userID, rows); err != nil {
		return fmt.Errorf("failed to store queries for user %s: %w", userID, err)
	}
	s.logger.Info().
		Str("user_id", userID).
		Int("queries", len(rows)).
		Msg("User search queries registered")

	s.triggerBackfill(userID)
	return nil
}

// triggerBackfill plans historical fetches in the background so the
// registration call returns immediately.
func (s *Service) triggerBackfill(userID string) {
	if s.planner == nil {
		return
	}
	plan := func() {
		if err := s.planner.PlanForUser(context.Background(), userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Backfill planning failed")
		}
	}
	if s.planSync {
		plan()
		return
	}
	go plan()
}

// seedFile is the YAML shape of one seed query file.
type seedFile struct {
	UserID  string `yaml:"user_id"`
	Queries []struct {
		TitleKeyword     string   `yaml:"title_keyword"`
		Location         string   `yaml:"location"`
		WorkArrangements []string `yaml:"work_arrangements"`
	} `yaml:"queries"`
}

// LoadSeedFiles registers the queries defined in every .yaml/.yml file
// under dir. A missing directory is not an error; a malformed file is.
func (s *Service) LoadSeedFiles(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("dir", dir).Msg("No seed query directory, skipping")
			return nil
		}
		return fmt.Errorf("failed to read seed query directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := s.loadSeedFile(ctx, path); err != nil {
			return fmt.Errorf("seed file %s: %w", name, err)
		}
	}
	if len(names) > 0 {
		s.logger.Info().Int("files", len(names)).Str("dir", dir).Msg("Seed query files loaded")
	}
	return nil
}

func (s *Service) loadSeedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if seed.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(seed.Queries) == 0 {
		return fmt.Errorf("no queries defined")
	}

	// Seed rows keep their per-query shape instead of a cartesian product.
	rows := make([]*models.UserSearchQuery, 0, len(seed.Queries))
	for i, q := range seed.Queries {
		if strings.TrimSpace(q.TitleKeyword) == "" {
			return fmt.Errorf("query %d: title_keyword is required", i+1)
		}
		normalized, err := normalizeArrangements(q.WorkArrangements)
		if err != nil {
			return fmt.Errorf("query %d: %w", i+1, err)
		}
		rows = append(rows, &models.UserSearchQuery{
			UserID:           seed.UserID,
			TitleKeyword:     strings.TrimSpace(q.TitleKeyword),
			Location:         strings.TrimSpace(q.Location),
			WorkArrangements: normalized,
			IsActive:         true,
		})
	}

	if err := s.storage.ReplaceUserQueries(ctx, seed.UserID, rows); err != nil {
		return fmt.Errorf("failed to store queries: %w", err)
	}
	s.triggerBackfill(seed.UserID)
	return nil
}

func cleanList(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

func normalizeArrangements(arrangements []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, wa := range arrangements {
		wa = strings.ToLower(strings.TrimSpace(wa))
		if wa == "" || seen[wa] {
			continue
		}
		if !validArrangements[wa] {
			return nil, fmt.Errorf("unknown work arrangement %q", wa)
		}
		seen[wa] = true
		out = append(out, wa)
	}
	sort.Strings(out)
	return out, nil
}
