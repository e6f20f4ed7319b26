package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	document interfaces.DocumentStorage
	entity   interfaces.EntityStorage
	kv       interfaces.KeyValueStorage
	sync     interfaces.SyncStateStorage
	run      interfaces.RunStorage
	dedupe   interfaces.DedupeStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		document: NewDocumentStorage(db, logger),
		entity:   NewEntityStorage(db, logger),
		kv:       NewKVStorage(db, logger),
		sync:     NewSyncStateStorage(db, logger),
		run:      NewRunStorage(db, logger),
		dedupe:   NewDedupeStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// DocumentStorage returns the Document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// EntityStorage returns the Entity storage interface
func (m *Manager) EntityStorage() interfaces.EntityStorage {
	return m.entity
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// SyncStateStorage returns the email sync state storage interface
func (m *Manager) SyncStateStorage() interfaces.SyncStateStorage {
	return m.sync
}

// RunStorage returns the ingestion run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// DedupeStorage returns the duplicate detection storage interface
func (m *Manager) DedupeStorage() interfaces.DedupeStorage {
	return m.dedupe
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
