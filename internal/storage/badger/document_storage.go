package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(doc *models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) SaveDocuments(docs []*models.Document) error {
	// BadgerHold doesn't expose bulk upsert in a single transaction, so
	// iterate. Callers batch at the ingestion layer anyway.
	for _, doc := range docs {
		if err := s.SaveDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *DocumentStorage) GetDocument(id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) GetDocumentBySource(sourceType, sourceID string) (*models.Document, error) {
	var docs []models.Document
	err := s.db.Store().Find(&docs, badgerhold.Where("SourceType").Eq(sourceType).And("SourceID").Eq(sourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document not found for source: %s/%s", sourceType, sourceID)
	}
	return &docs[0], nil
}

func (s *DocumentStorage) DeleteDocument(id string) error {
	if err := s.db.Store().Delete(id, &models.Document{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) ListDocuments(filter *models.DocumentFilter) ([]*models.Document, error) {
	query := badgerhold.Where("ID").Ne("") // Select all

	if filter != nil {
		if filter.SourceType != "" {
			query = query.And("SourceType").Eq(filter.SourceType)
		}
		if filter.Symbol != "" {
			query = query.And("Symbols").Contains(filter.Symbol)
		}
		if filter.Tag != "" {
			query = query.And("Tags").Contains(filter.Tag)
		}
		if !filter.Since.IsZero() {
			query = query.And("CreatedAt").Ge(filter.Since)
		}
	}

	query = query.SortBy("CreatedAt").Reverse()

	if filter != nil {
		if filter.Offset > 0 {
			query = query.Skip(filter.Offset)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var docs []models.Document
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) GetDocumentsBySymbol(symbol string, limit int) ([]*models.Document, error) {
	query := badgerhold.Where("Symbols").Contains(symbol).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []models.Document
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to get documents by symbol: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// GetUnembeddedDocuments returns documents with at least one chunk missing
// its embedding, oldest first. BadgerHold cannot query inside the chunk
// slice, so this scans and filters in code.
func (s *DocumentStorage) GetUnembeddedDocuments(limit int) ([]*models.Document, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	var result []*models.Document
	for i := range docs {
		doc := &docs[i]
		if len(doc.Chunks) == 0 {
			continue
		}
		for j := range doc.Chunks {
			if len(doc.Chunks[j].Embedding) == 0 {
				result = append(result, doc)
				break
			}
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// IterateChunks walks every embedded chunk in the store. Vector search
// scans this way rather than holding a separate chunk index; the corpus
// is bounded by the ingestion window so a full scan stays cheap.
func (s *DocumentStorage) IterateChunks(fn func(doc *models.Document, chunk *models.Chunk) bool) error {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to scan documents: %w", err)
	}

	for i := range docs {
		doc := &docs[i]
		for j := range doc.Chunks {
			if !fn(doc, &doc.Chunks[j]) {
				return nil
			}
		}
	}
	return nil
}

func (s *DocumentStorage) CountDocuments() (int, error) {
	count, err := s.db.Store().Count(&models.Document{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(count), nil
}

func (s *DocumentStorage) CountDocumentsBySource(sourceType string) (int, error) {
	count, err := s.db.Store().Count(&models.Document{}, badgerhold.Where("SourceType").Eq(sourceType))
	if err != nil {
		return 0, fmt.Errorf("failed to count documents by source: %w", err)
	}
	return int(count), nil
}

func (s *DocumentStorage) GetStats() (*models.DocumentStats, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to scan documents for stats: %w", err)
	}

	stats := &models.DocumentStats{
		TotalDocuments:    len(docs),
		DocumentsBySource: make(map[string]int),
	}

	for i := range docs {
		stats.DocumentsBySource[docs[i].SourceType]++
		stats.TotalChunks += len(docs[i].Chunks)
		if docs[i].IngestedAt != nil {
			if stats.LastIngested == nil || docs[i].IngestedAt.After(*stats.LastIngested) {
				stats.LastIngested = docs[i].IngestedAt
			}
		}
	}

	return stats, nil
}

func (s *DocumentStorage) ClearAll() error {
	if err := s.db.Store().DeleteMatching(&models.Document{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	s.logger.Info().Msg("Cleared all documents")
	return nil
}
