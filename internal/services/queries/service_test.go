package queries

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

type fakeQueryStore struct {
	byUser map[string][]*models.UserSearchQuery
}

func (s *fakeQueryStore) ReplaceUserQueries(ctx context.Context, userID string, queries []*models.UserSearchQuery) error {
	if s.byUser == nil {
		s.byUser = make(map[string][]*models.UserSearchQuery)
	}
	s.byUser[userID] = queries
	return nil
}

func (s *fakeQueryStore) GetUserQueries(ctx context.Context, userID string) ([]*models.UserSearchQuery, error) {
	return s.byUser[userID], nil
}

func (s *fakeQueryStore) GetActiveQueries(ctx context.Context) ([]*models.UserSearchQuery, error) {
	var out []*models.UserSearchQuery
	for _, qs := range s.byUser {
		out = append(out, qs...)
	}
	return out, nil
}

type fakePlanner struct {
	planned []string
}

func (p *fakePlanner) PlanForUser(ctx context.Context, userID string) error {
	p.planned = append(p.planned, userID)
	return nil
}

func newTestService(store *fakeQueryStore, planner *fakePlanner) *Service {
	svc := NewService(store, planner, arbor.NewLogger())
	svc.planSync = true
	return svc
}

func TestRegisterExpandsCartesianProduct(t *testing.T) {
	store := &fakeQueryStore{}
	planner := &fakePlanner{}
	svc := newTestService(store, planner)

	err := svc.RegisterUserQueries(context.Background(), "user-1",
		[]string{"Backend Engineer", "Platform Engineer"},
		[]string{"Berlin", "Hamburg"},
		[]string{"Remote", "hybrid"})
	require.NoError(t, err)

	rows := store.byUser["user-1"]
	require.Len(t, rows, 4)
	assert.Equal(t, "Backend Engineer", rows[0].TitleKeyword)
	assert.Equal(t, "Berlin", rows[0].Location)
	assert.Equal(t, []string{"hybrid", "remote"}, rows[0].WorkArrangements)
	assert.True(t, rows[0].IsActive)

	assert.Equal(t, []string{"user-1"}, planner.planned)
}

func TestRegisterRejectsUnknownArrangement(t *testing.T) {
	svc := newTestService(&fakeQueryStore{}, &fakePlanner{})

	err := svc.RegisterUserQueries(context.Background(), "user-1",
		[]string{"Backend Engineer"}, []string{"Berlin"}, []string{"nomadic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nomadic")
}

func TestRegisterRequiresTitle(t *testing.T) {
	svc := newTestService(&fakeQueryStore{}, &fakePlanner{})

	err := svc.RegisterUserQueries(context.Background(), "user-1", []string{"  "}, nil, nil)
	require.Error(t, err)
}

func TestRegisterReplacesPreviousQueries(t *testing.T) {
	store := &fakeQueryStore{}
	svc := newTestService(store, &fakePlanner{})

	require.NoError(t, svc.RegisterUserQueries(context.Background(), "user-1",
		[]string{"Backend Engineer"}, []string{"Berlin"}, nil))
	require.NoError(t, svc.RegisterUserQueries(context.Background(), "user-1",
		[]string{"SRE"}, []string{"Munich"}, nil))

	rows := store.byUser["user-1"]
	require.Len(t, rows, 1)
	assert.Equal(t, "SRE", rows[0].TitleKeyword)
}

func TestLoadSeedFiles(t *testing.T) {
	dir := t.TempDir()
	seed := `user_id: user-7
queries:
  - title_keyword: Backend Engineer
    location: Berlin
    work_arrangements: [remote]
  - title_keyword: Data Engineer
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user7.yaml"), []byte(seed), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := &fakeQueryStore{}
	planner := &fakePlanner{}
	svc := newTestService(store, planner)

	require.NoError(t, svc.LoadSeedFiles(context.Background(), dir))

	rows := store.byUser["user-7"]
	require.Len(t, rows, 2)
	assert.Equal(t, "Backend Engineer", rows[0].TitleKeyword)
	assert.Equal(t, []string{"remote"}, rows[0].WorkArrangements)
	assert.Empty(t, rows[1].WorkArrangements)
	assert.Equal(t, []string{"user-7"}, planner.planned)
}

func TestLoadSeedFilesMissingDirIsNoOp(t *testing.T) {
	svc := newTestService(&fakeQueryStore{}, &fakePlanner{})
	assert.NoError(t, svc.LoadSeedFiles(context.Background(), filepath.Join(t.TempDir(), "absent")))
}

func TestLoadSeedFilesRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("queries: [}"), 0o644))

	svc := newTestService(&fakeQueryStore{}, &fakePlanner{})
	err := svc.LoadSeedFiles(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}
