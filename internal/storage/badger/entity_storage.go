package badger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EntityStorage implements the EntityStorage interface for Badger
type EntityStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEntityStorage creates a new EntityStorage instance
func NewEntityStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EntityStorage {
	return &EntityStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EntityStorage) SaveEntities(entities []models.Entity) error {
	for i := range entities {
		e := &entities[i]
		if e.ID == "" {
			return fmt.Errorf("entity ID is required")
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		if err := s.db.Store().Upsert(e.ID, e); err != nil {
			return fmt.Errorf("failed to save entity %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *EntityStorage) SaveRelationships(relationships []models.Relationship) error {
	for i := range relationships {
		r := &relationships[i]
		if r.ID == "" {
			return fmt.Errorf("relationship ID is required")
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		if err := s.db.Store().Upsert(r.ID, r); err != nil {
			return fmt.Errorf("failed to save relationship %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *EntityStorage) FindByValue(normalized string, limit int) ([]models.Entity, error) {
	query := badgerhold.Where("Normalized").Eq(normalized).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entities []models.Entity
	if err := s.db.Store().Find(&entities, query); err != nil {
		return nil, fmt.Errorf("failed to find entities by value: %w", err)
	}
	return entities, nil
}

func (s *EntityStorage) FindBySymbol(symbol string, types []models.EntityType, limit int) ([]models.Entity, error) {
	// Symbol-scoped lookups join through the document: collect documents
	// where the symbol itself was extracted, then pull entities of the
	// requested types from those documents.
	var tickers []models.Entity
	err := s.db.Store().Find(&tickers, badgerhold.Where("Normalized").Eq(symbol).And("Type").Eq(models.EntityTicker))
	if err != nil {
		return nil, fmt.Errorf("failed to find ticker mentions: %w", err)
	}

	docIDs := make(map[string]bool, len(tickers))
	for i := range tickers {
		docIDs[tickers[i].DocumentID] = true
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	typeSet := make(map[models.EntityType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var all []models.Entity
	if err := s.db.Store().Find(&all, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}

	var result []models.Entity
	for i := range all {
		e := all[i]
		if !docIDs[e.DocumentID] {
			continue
		}
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *EntityStorage) FindByDocument(documentID string) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.db.Store().Find(&entities, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to find entities by document: %w", err)
	}
	return entities, nil
}

func (s *EntityStorage) RelatedDocuments(normalized string, limit int) ([]string, error) {
	var rels []models.Relationship
	err := s.db.Store().Find(&rels, badgerhold.Where("FromValue").Eq(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to find relationships: %w", err)
	}

	// Highest-weight documents first, deduplicated.
	sort.Slice(rels, func(i, j int) bool { return rels[i].Weight > rels[j].Weight })

	seen := make(map[string]bool)
	var docIDs []string
	for i := range rels {
		id := rels[i].DocumentID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		docIDs = append(docIDs, id)
		if limit > 0 && len(docIDs) >= limit {
			break
		}
	}
	return docIDs, nil
}

func (s *EntityStorage) MetricInputs(symbol, metric, period string, limit int) ([]models.Entity, error) {
	var metrics []models.Entity
	err := s.db.Store().Find(&metrics, badgerhold.Where("Type").Eq(models.EntityFinancialMetric).SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to find metric entities: %w", err)
	}

	// Attribute maps aren't queryable through badgerhold, so narrow here.
	var result []models.Entity
	for i := range metrics {
		e := metrics[i]
		if symbol != "" && e.Attributes["symbol"] != symbol {
			continue
		}
		if metric != "" && e.Attributes["metric"] != metric {
			continue
		}
		if period != "" && e.Attributes["period"] != period {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *EntityStorage) CountEntities() (int, error) {
	count, err := s.db.Store().Count(&models.Entity{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return int(count), nil
}

func (s *EntityStorage) DeleteByDocument(documentID string) error {
	err := s.db.Store().DeleteMatching(&models.Entity{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete entities for document: %w", err)
	}
	err = s.db.Store().DeleteMatching(&models.Relationship{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete relationships for document: %w", err)
	}
	return nil
}

func (s *EntityStorage) ClearAll() error {
	if err := s.db.Store().DeleteMatching(&models.Entity{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.Relationship{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}
	s.logger.Info().Msg("Cleared all entities and relationships")
	return nil
}
