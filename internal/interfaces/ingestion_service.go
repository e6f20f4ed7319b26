package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// IngestionService orchestrates pipeline runs: fetch from vendor
// connectors, validate, convert to documents, and hand each record to
// the knowledge layer. Every run leaves a RunSummary in storage.
type IngestionService interface {
	// RunAll fetches every watchlist symbol from every enabled source.
	RunAll(ctx context.Context) (*models.RunSummary, error)

	// RunSource runs the pipeline for a single source ("benzinga",
	// "edgar", ...). The special source "email" syncs the configured
	// IMAP accounts instead.
	RunSource(ctx context.Context, source string) (*models.RunSummary, error)
}
