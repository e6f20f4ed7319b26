package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SyncStateStorage implements the SyncStateStorage interface for Badger
type SyncStateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSyncStateStorage creates a new SyncStateStorage instance
func NewSyncStateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SyncStateStorage {
	return &SyncStateStorage{
		db:     db,
		logger: logger,
	}
}

// GetSyncState returns the stored sync state for an account, or nil when
// the account has never been synced
func (s *SyncStateStorage) GetSyncState(ctx context.Context, accountName string) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.Store().Get(accountName, &state)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return &state, nil
}

func (s *SyncStateStorage) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if state.AccountName == "" {
		return fmt.Errorf("account name is required")
	}
	if err := s.db.Store().Upsert(state.AccountName, state); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

func (s *SyncStateStorage) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	var states []models.SyncState
	if err := s.db.Store().Find(&states, nil); err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	return states, nil
}

func (s *SyncStateStorage) DeleteSyncState(ctx context.Context, accountName string) error {
	err := s.db.Store().Delete(accountName, &models.SyncState{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
