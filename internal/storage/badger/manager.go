package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// Manager aggregates all entity storages over one Badger connection.
type Manager struct {
	db     *BadgerDB
	logger arbor.ILogger

	jobStorage       interfaces.JobStorage
	matchStorage     interfaces.MatchStorage
	queryStorage     interfaces.QueryStorage
	backfillStorage  interfaces.BackfillStorage
	profileStorage   interfaces.ProfileStorage
	embeddingStorage interfaces.EmbeddingStorage
	kvStorage        interfaces.KeyValueStorage
}

// NewManager opens the database and wires all entity storages.
func NewManager(config *common.BadgerConfig, logger arbor.ILogger) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger: %w", err)
	}

	return &Manager{
		db:               db,
		logger:           logger,
		jobStorage:       NewJobStorage(db, logger),
		matchStorage:     NewMatchStorage(db, logger),
		queryStorage:     NewQueryStorage(db, logger),
		backfillStorage:  NewBackfillStorage(db, logger),
		profileStorage:   NewProfileStorage(db, logger),
		embeddingStorage: NewEmbeddingStorage(db, logger),
		kvStorage:        NewKeyValueStorage(db, logger),
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage             { return m.jobStorage }
func (m *Manager) MatchStorage() interfaces.MatchStorage         { return m.matchStorage }
func (m *Manager) QueryStorage() interfaces.QueryStorage         { return m.queryStorage }
func (m *Manager) BackfillStorage() interfaces.BackfillStorage   { return m.backfillStorage }
func (m *Manager) ProfileStorage() interfaces.ProfileStorage     { return m.profileStorage }
func (m *Manager) EmbeddingStorage() interfaces.EmbeddingStorage { return m.embeddingStorage }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage   { return m.kvStorage }

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
