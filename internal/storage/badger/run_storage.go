package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRunSummary(ctx context.Context, summary *models.RunSummary) error {
	if summary.ID == "" {
		return fmt.Errorf("run summary ID is required")
	}
	if err := s.db.Store().Upsert(summary.ID, summary); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

func (s *RunStorage) ListRunSummaries(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var summaries []models.RunSummary
	if err := s.db.Store().Find(&summaries, query); err != nil {
		return nil, fmt.Errorf("failed to list run summaries: %w", err)
	}
	return summaries, nil
}

func (s *RunStorage) LastRun(ctx context.Context, source string) (*models.RunSummary, error) {
	query := badgerhold.Where("Source").Eq(source).SortBy("StartedAt").Reverse().Limit(1)

	var summaries []models.RunSummary
	if err := s.db.Store().Find(&summaries, query); err != nil {
		return nil, fmt.Errorf("failed to find last run: %w", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}
