package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/models"
)

func TestEntityFindBySymbol(t *testing.T) {
	db := newTestDB(t)
	storage := NewEntityStorage(db, arbor.NewLogger())

	entities := []models.Entity{
		{ID: "e1", Type: models.EntityTicker, Value: "$AAPL", Normalized: "AAPL", DocumentID: "doc_1"},
		{ID: "e2", Type: models.EntityRating, Value: "Overweight", Normalized: "overweight", DocumentID: "doc_1",
			Attributes: map[string]string{"firm": "Morgan Stanley"}},
		{ID: "e3", Type: models.EntityTicker, Value: "$MSFT", Normalized: "MSFT", DocumentID: "doc_2"},
		{ID: "e4", Type: models.EntityRating, Value: "Buy", Normalized: "buy", DocumentID: "doc_2"},
	}
	if err := storage.SaveEntities(entities); err != nil {
		t.Fatalf("Failed to save entities: %v", err)
	}

	ratings, err := storage.FindBySymbol("AAPL", []models.EntityType{models.EntityRating}, 10)
	if err != nil {
		t.Fatalf("FindBySymbol failed: %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("Expected 1 AAPL rating, got %d", len(ratings))
	}
	if ratings[0].Attributes["firm"] != "Morgan Stanley" {
		t.Errorf("Expected Morgan Stanley rating, got %v", ratings[0].Attributes)
	}

	// Symbol with no mentions
	none, err := storage.FindBySymbol("TSLA", nil, 10)
	if err != nil {
		t.Fatalf("FindBySymbol failed for unknown symbol: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no entities for TSLA, got %d", len(none))
	}
}

func TestRelatedDocumentsOrderedByWeight(t *testing.T) {
	db := newTestDB(t)
	storage := NewEntityStorage(db, arbor.NewLogger())

	rels := []models.Relationship{
		{ID: "r1", Type: models.RelMentions, FromValue: "AAPL", ToValue: "doc", DocumentID: "doc_low", Weight: 1},
		{ID: "r2", Type: models.RelMentions, FromValue: "AAPL", ToValue: "doc", DocumentID: "doc_high", Weight: 5},
		{ID: "r3", Type: models.RelMentions, FromValue: "AAPL", ToValue: "doc", DocumentID: "doc_high", Weight: 3},
		{ID: "r4", Type: models.RelMentions, FromValue: "MSFT", ToValue: "doc", DocumentID: "doc_other", Weight: 9},
	}
	if err := storage.SaveRelationships(rels); err != nil {
		t.Fatalf("Failed to save relationships: %v", err)
	}

	docs, err := storage.RelatedDocuments("AAPL", 10)
	if err != nil {
		t.Fatalf("RelatedDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 related documents, got %d", len(docs))
	}
	if docs[0] != "doc_high" {
		t.Errorf("Expected highest weight document first, got %s", docs[0])
	}
}

func TestMetricInputsFiltering(t *testing.T) {
	db := newTestDB(t)
	storage := NewEntityStorage(db, arbor.NewLogger())

	now := time.Now()
	entities := []models.Entity{
		{ID: "m1", Type: models.EntityFinancialMetric, Value: "revenue of $94.9 billion", Normalized: "94900000000",
			DocumentID: "doc_1", CreatedAt: now,
			Attributes: map[string]string{"symbol": "AAPL", "metric": "revenue", "period": "Q3 2025", "value": "94900000000"}},
		{ID: "m2", Type: models.EntityFinancialMetric, Value: "net income of $23.4 billion", Normalized: "23400000000",
			DocumentID: "doc_1", CreatedAt: now,
			Attributes: map[string]string{"symbol": "AAPL", "metric": "net_income", "period": "Q3 2025", "value": "23400000000"}},
		{ID: "m3", Type: models.EntityFinancialMetric, Value: "revenue of $65.6 billion", Normalized: "65600000000",
			DocumentID: "doc_2", CreatedAt: now.Add(-time.Hour),
			Attributes: map[string]string{"symbol": "MSFT", "metric": "revenue", "period": "Q4 2025", "value": "65600000000"}},
	}
	if err := storage.SaveEntities(entities); err != nil {
		t.Fatalf("Failed to save entities: %v", err)
	}

	aaplRevenue, err := storage.MetricInputs("AAPL", "revenue", "", 10)
	if err != nil {
		t.Fatalf("MetricInputs failed: %v", err)
	}
	if len(aaplRevenue) != 1 || aaplRevenue[0].ID != "m1" {
		t.Fatalf("Expected m1 for AAPL revenue, got %d results", len(aaplRevenue))
	}

	withPeriod, err := storage.MetricInputs("MSFT", "revenue", "Q4 2025", 10)
	if err != nil {
		t.Fatalf("MetricInputs with period failed: %v", err)
	}
	if len(withPeriod) != 1 || withPeriod[0].ID != "m3" {
		t.Fatalf("Expected m3 for MSFT Q4 revenue, got %d results", len(withPeriod))
	}

	wrongPeriod, err := storage.MetricInputs("AAPL", "revenue", "Q1 2020", 10)
	if err != nil {
		t.Fatalf("MetricInputs wrong period failed: %v", err)
	}
	if len(wrongPeriod) != 0 {
		t.Errorf("Expected no results for wrong period, got %d", len(wrongPeriod))
	}
}

func TestDeleteByDocument(t *testing.T) {
	db := newTestDB(t)
	storage := NewEntityStorage(db, arbor.NewLogger())

	if err := storage.SaveEntities([]models.Entity{
		{ID: "e1", Type: models.EntityTicker, Normalized: "AAPL", DocumentID: "doc_1"},
		{ID: "e2", Type: models.EntityTicker, Normalized: "MSFT", DocumentID: "doc_2"},
	}); err != nil {
		t.Fatalf("Failed to save entities: %v", err)
	}
	if err := storage.SaveRelationships([]models.Relationship{
		{ID: "r1", Type: models.RelMentions, FromValue: "AAPL", DocumentID: "doc_1"},
	}); err != nil {
		t.Fatalf("Failed to save relationships: %v", err)
	}

	if err := storage.DeleteByDocument("doc_1"); err != nil {
		t.Fatalf("DeleteByDocument failed: %v", err)
	}

	remaining, err := storage.FindByDocument("doc_1")
	if err != nil {
		t.Fatalf("FindByDocument failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected no entities for doc_1 after delete, got %d", len(remaining))
	}

	count, err := storage.CountEntities()
	if err != nil {
		t.Fatalf("CountEntities failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entity remaining, got %d", count)
	}
}

func TestDedupeSeen(t *testing.T) {
	db := newTestDB(t)
	storage := NewDedupeStorage(db, arbor.NewLogger())
	ctx := context.Background()

	seen, err := storage.Seen(ctx, "hash-1", time.Hour)
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Expected first sighting to report unseen")
	}

	seen, err = storage.Seen(ctx, "hash-1", time.Hour)
	if err != nil {
		t.Fatalf("Seen failed on second call: %v", err)
	}
	if !seen {
		t.Error("Expected second sighting within window to report seen")
	}

	if _, err := storage.Seen(ctx, "", time.Hour); err == nil {
		t.Error("Expected error for empty hash")
	}

	// A zero window records the hash without a TTL
	seen, err = storage.Seen(ctx, "hash-2", 0)
	if err != nil {
		t.Fatalf("Seen failed for zero window: %v", err)
	}
	if seen {
		t.Error("Expected first sighting with zero window to report unseen")
	}

	seen, err = storage.Seen(ctx, "hash-2", 0)
	if err != nil {
		t.Fatalf("Seen failed on second zero-window call: %v", err)
	}
	if !seen {
		t.Error("Expected zero-window hash to stay recorded")
	}
}
