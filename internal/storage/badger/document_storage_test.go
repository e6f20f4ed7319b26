package badger

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// newTestDB opens a throwaway badger store in a temp directory.
func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestDocumentSaveAndGetBySource(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := &models.Document{
		ID:              "doc_1",
		SourceType:      models.SourceBenzinga,
		SourceID:        "bz-100",
		Title:           "Apple Beats Q3 Estimates",
		ContentMarkdown: "Apple reported revenue of $94.9B for the quarter.",
		Symbols:         []string{"AAPL"},
	}
	if err := storage.SaveDocument(doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	got, err := storage.GetDocumentBySource(models.SourceBenzinga, "bz-100")
	if err != nil {
		t.Fatalf("Failed to get document by source: %v", err)
	}
	if got.ID != "doc_1" {
		t.Errorf("Expected doc_1, got %s", got.ID)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set on save")
	}

	// Unknown source pair should error
	if _, err := storage.GetDocumentBySource(models.SourceBenzinga, "missing"); err == nil {
		t.Error("Expected error for unknown source ID")
	}
}

func TestDocumentSaveRequiresID(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	if err := storage.SaveDocument(&models.Document{Title: "no id"}); err == nil {
		t.Fatal("Expected error for document without ID")
	}
}

func TestListDocumentsFilters(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	docs := []*models.Document{
		{ID: "doc_a", SourceType: models.SourceBenzinga, SourceID: "a", Symbols: []string{"AAPL"}, Tags: []string{"earnings"}},
		{ID: "doc_b", SourceType: models.SourcePolygon, SourceID: "b", Symbols: []string{"MSFT"}},
		{ID: "doc_c", SourceType: models.SourceBenzinga, SourceID: "c", Symbols: []string{"AAPL", "MSFT"}},
	}
	if err := storage.SaveDocuments(docs); err != nil {
		t.Fatalf("Failed to save documents: %v", err)
	}

	bySource, err := storage.ListDocuments(&models.DocumentFilter{SourceType: models.SourceBenzinga})
	if err != nil {
		t.Fatalf("List by source failed: %v", err)
	}
	if len(bySource) != 2 {
		t.Errorf("Expected 2 benzinga documents, got %d", len(bySource))
	}

	bySymbol, err := storage.ListDocuments(&models.DocumentFilter{Symbol: "MSFT"})
	if err != nil {
		t.Fatalf("List by symbol failed: %v", err)
	}
	if len(bySymbol) != 2 {
		t.Errorf("Expected 2 MSFT documents, got %d", len(bySymbol))
	}

	byTag, err := storage.ListDocuments(&models.DocumentFilter{Tag: "earnings"})
	if err != nil {
		t.Fatalf("List by tag failed: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "doc_a" {
		t.Errorf("Expected only doc_a for tag earnings, got %d docs", len(byTag))
	}

	limited, err := storage.ListDocuments(&models.DocumentFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 document with limit, got %d", len(limited))
	}
}

func TestIterateChunks(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := &models.Document{
		ID:         "doc_chunked",
		SourceType: models.SourceEmail,
		SourceID:   "msg-1",
		Chunks: []models.Chunk{
			{ID: "c1", DocumentID: "doc_chunked", Index: 0, Content: "first", Embedding: []float64{0.1, 0.2}},
			{ID: "c2", DocumentID: "doc_chunked", Index: 1, Content: "second", Embedding: []float64{0.3, 0.4}},
		},
	}
	if err := storage.SaveDocument(doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	var seen []string
	err := storage.IterateChunks(func(d *models.Document, c *models.Chunk) bool {
		seen = append(seen, c.ID)
		return true
	})
	if err != nil {
		t.Fatalf("IterateChunks failed: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("Expected 2 chunks, got %d", len(seen))
	}

	// Early stop
	count := 0
	err = storage.IterateChunks(func(d *models.Document, c *models.Chunk) bool {
		count++
		return false
	})
	if err != nil {
		t.Fatalf("IterateChunks early stop failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected iteration to stop after 1 chunk, got %d", count)
	}
}

func TestDocumentStats(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	ingested := time.Now().Add(-time.Hour)
	docs := []*models.Document{
		{ID: "d1", SourceType: models.SourceBenzinga, SourceID: "1", Chunks: []models.Chunk{{ID: "c1"}}, IngestedAt: &ingested},
		{ID: "d2", SourceType: models.SourceEDGAR, SourceID: "2"},
	}
	if err := storage.SaveDocuments(docs); err != nil {
		t.Fatalf("Failed to save documents: %v", err)
	}

	stats, err := storage.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("Expected 2 documents, got %d", stats.TotalDocuments)
	}
	if stats.DocumentsBySource[models.SourceBenzinga] != 1 {
		t.Errorf("Expected 1 benzinga document in stats")
	}
	if stats.TotalChunks != 1 {
		t.Errorf("Expected 1 chunk, got %d", stats.TotalChunks)
	}
	if stats.LastIngested == nil {
		t.Error("Expected last ingested timestamp")
	}
}
