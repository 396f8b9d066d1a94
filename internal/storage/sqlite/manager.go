package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db      *SQLiteDB
	jobDef  interfaces.JobDefinitionStorage
	jobRun  interfaces.JobRunStorage
	snap    interfaces.SnapshotStorage
	insight interfaces.InsightStorage
	catalog interfaces.CatalogStorage
	kv      interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (*Manager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:      db,
		jobDef:  NewJobDefinitionStorage(db, logger),
		jobRun:  NewJobRunStorage(db, logger),
		snap:    NewSnapshotStorage(db, logger),
		insight: NewInsightStorage(db, logger),
		catalog: NewCatalogStorage(db, logger),
		kv:      NewKVStorage(db, logger),
		logger:  logger,
	}, nil
}

// JobDefinitionStorage returns the job definition storage interface
func (m *Manager) JobDefinitionStorage() interfaces.JobDefinitionStorage {
	return m.jobDef
}

// JobRunStorage returns the job run storage interface
func (m *Manager) JobRunStorage() interfaces.JobRunStorage {
	return m.jobRun
}

// SnapshotStorage returns the snapshot storage interface
func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snap
}

// InsightStorage returns the insight storage interface
func (m *Manager) InsightStorage() interfaces.InsightStorage {
	return m.insight
}

// CatalogStorage returns the catalog storage interface
func (m *Manager) CatalogStorage() interfaces.CatalogStorage {
	return m.catalog
}

// KVStorage returns the key/value storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DB returns the underlying database handle
func (m *Manager) DB() *SQLiteDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
