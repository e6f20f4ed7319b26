package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/ice/internal/models"
)

// DocumentStorage - interface for normalized document persistence
type DocumentStorage interface {
	// CRUD operations
	SaveDocument(doc *models.Document) error
	SaveDocuments(docs []*models.Document) error
	GetDocument(id string) (*models.Document, error)
	GetDocumentBySource(sourceType, sourceID string) (*models.Document, error)
	DeleteDocument(id string) error

	// List operations
	ListDocuments(filter *models.DocumentFilter) ([]*models.Document, error)
	GetDocumentsBySymbol(symbol string, limit int) ([]*models.Document, error)

	// GetUnembeddedDocuments returns documents with at least one chunk
	// missing its embedding, oldest first. Feeds the backfill coordinator.
	GetUnembeddedDocuments(limit int) ([]*models.Document, error)

	// Chunk iteration for vector search. fn returning false stops the scan.
	IterateChunks(fn func(doc *models.Document, chunk *models.Chunk) bool) error

	// Stats operations
	CountDocuments() (int, error)
	CountDocumentsBySource(sourceType string) (int, error)
	GetStats() (*models.DocumentStats, error)

	// Bulk operations
	ClearAll() error
}

// EntityStorage - interface for extracted entity and relationship persistence
type EntityStorage interface {
	SaveEntities(entities []models.Entity) error
	SaveRelationships(relationships []models.Relationship) error

	FindByValue(normalized string, limit int) ([]models.Entity, error)
	FindBySymbol(symbol string, types []models.EntityType, limit int) ([]models.Entity, error)
	FindByDocument(documentID string) ([]models.Entity, error)

	// RelatedDocuments returns document IDs linked to the given normalized
	// entity value through stored relationships.
	RelatedDocuments(normalized string, limit int) ([]string, error)

	// MetricInputs returns financial metric entities for a symbol, most
	// recent first. Period narrows to a fiscal period when non-empty.
	MetricInputs(symbol, metric, period string, limit int) ([]models.Entity, error)

	CountEntities() (int, error)
	DeleteByDocument(documentID string) error
	ClearAll() error
}

// SyncStateStorage - interface for incremental email sync state
type SyncStateStorage interface {
	GetSyncState(ctx context.Context, accountName string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
	DeleteSyncState(ctx context.Context, accountName string) error
}

// RunStorage - interface for ingestion run summaries
type RunStorage interface {
	SaveRunSummary(ctx context.Context, summary *models.RunSummary) error
	ListRunSummaries(ctx context.Context, limit int) ([]models.RunSummary, error)
	LastRun(ctx context.Context, source string) (*models.RunSummary, error)
}

// DedupeStorage - interface for content hash bookkeeping used by duplicate
// detection. Hashes expire after the configured window.
type DedupeStorage interface {
	// Seen records the hash and reports whether it was already present
	// within the window.
	Seen(ctx context.Context, hash string, window time.Duration) (bool, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	DocumentStorage() DocumentStorage
	EntityStorage() EntityStorage
	KeyValueStorage() KeyValueStorage
	SyncStateStorage() SyncStateStorage
	RunStorage() RunStorage
	DedupeStorage() DedupeStorage

	// LoadKeysFromFiles seeds the KV store from TOML files in a keys
	// directory; LoadEnvFile seeds it from a .env file. Both are
	// best-effort and non-fatal when the source is absent.
	LoadKeysFromFiles(ctx context.Context, dirPath string) error
	LoadEnvFile(ctx context.Context, filePath string) error

	Close() error
}
