package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
)

// mockDocumentStorage serves a fixed document set for scan-based search
type mockDocumentStorage struct {
	docs []*models.Document
}

func (m *mockDocumentStorage) SaveDocument(doc *models.Document) error { return nil }

func (m *mockDocumentStorage) SaveDocuments(docs []*models.Document) error { return nil }

func (m *mockDocumentStorage) GetDocument(id string) (*models.Document, error) {
	for _, doc := range m.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("document not found: %s", id)
}

func (m *mockDocumentStorage) GetDocumentBySource(sourceType, sourceID string) (*models.Document, error) {
	return nil, fmt.Errorf("document not found for source: %s/%s", sourceType, sourceID)
}

func (m *mockDocumentStorage) DeleteDocument(id string) error { return nil }

func (m *mockDocumentStorage) ListDocuments(filter *models.DocumentFilter) ([]*models.Document, error) {
	docs := m.docs
	if filter != nil && filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return docs, nil
}

func (m *mockDocumentStorage) GetDocumentsBySymbol(symbol string, limit int) ([]*models.Document, error) {
	return nil, nil
}

func (m *mockDocumentStorage) GetUnembeddedDocuments(limit int) ([]*models.Document, error) {
	return nil, nil
}

func (m *mockDocumentStorage) IterateChunks(fn func(doc *models.Document, chunk *models.Chunk) bool) error {
	for _, doc := range m.docs {
		for i := range doc.Chunks {
			if !fn(doc, &doc.Chunks[i]) {
				return nil
			}
		}
	}
	return nil
}

func (m *mockDocumentStorage) CountDocuments() (int, error) { return len(m.docs), nil }

func (m *mockDocumentStorage) CountDocumentsBySource(s string) (int, error) { return 0, nil }

func (m *mockDocumentStorage) GetStats() (*models.DocumentStats, error) { return nil, nil }

func (m *mockDocumentStorage) ClearAll() error { return nil }

// mockEntityStorage serves canned relationship lookups
type mockEntityStorage struct {
	related map[string][]string
	err     error
}

func (m *mockEntityStorage) SaveEntities(e []models.Entity) error { return nil }

func (m *mockEntityStorage) SaveRelationships(r []models.Relationship) error { return nil }

func (m *mockEntityStorage) FindByValue(n string, l int) ([]models.Entity, error) { return nil, nil }

func (m *mockEntityStorage) FindBySymbol(s string, t []models.EntityType, l int) ([]models.Entity, error) {
	return nil, nil
}

func (m *mockEntityStorage) FindByDocument(id string) ([]models.Entity, error) { return nil, nil }

func (m *mockEntityStorage) RelatedDocuments(normalized string, limit int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.related[normalized], nil
}

func (m *mockEntityStorage) MetricInputs(s, mt, p string, l int) ([]models.Entity, error) {
	return nil, nil
}

func (m *mockEntityStorage) CountEntities() (int, error) { return 0, nil }

func (m *mockEntityStorage) DeleteByDocument(id string) error { return nil }

func (m *mockEntityStorage) ClearAll() error { return nil }

func newTestService(docs []*models.Document, related map[string][]string) *Service {
	return NewService(
		&mockDocumentStorage{docs: docs},
		&mockEntityStorage{related: related},
		entities.NewExtractor([]string{"AAPL", "MSFT"}),
		&common.QueryConfig{Mode: "hybrid", TopK: 12},
		arbor.NewLogger(),
	)
}

func testChunk(docID string, index int, content string, embedding []float64) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("%s_c%d", docID, index),
		DocumentID: docID,
		Index:      index,
		Content:    content,
		Embedding:  embedding,
	}
}

func testDoc(id, sourceType, title string, symbols []string, chunks ...models.Chunk) *models.Document {
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return &models.Document{
		ID:              id,
		SourceType:      sourceType,
		SourceID:        id,
		Title:           title,
		ContentMarkdown: strings.Join(contents, "\n\n"),
		Symbols:         symbols,
		Chunks:          chunks,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestSearchVectorMode(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_a", "benzinga", "Apple earnings", []string{"AAPL"},
			testChunk("doc_a", 0, "Apple beat expectations", []float64{1, 0, 0}),
			testChunk("doc_a", 1, "Guidance raised for next year", []float64{0, 1, 0}),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Embedding: []float64{1, 0, 0},
		Mode:      models.ModeVector,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Chunk.ID != "doc_a_c0" {
		t.Errorf("Expected doc_a_c0, got %s", results[0].Chunk.ID)
	}
	if results[0].VectorSimilarity != 1.0 {
		t.Errorf("Expected similarity 1.0, got %f", results[0].VectorSimilarity)
	}
	if results[0].Score != weightVector {
		t.Errorf("Expected score %f, got %f", float64(weightVector), results[0].Score)
	}
}

func TestSearchVectorModeRequiresEmbedding(t *testing.T) {
	svc := newTestService(nil, nil)

	_, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Text: "apple revenue",
		Mode: models.ModeVector,
	})
	if err == nil {
		t.Fatal("Expected error for vector mode without embedding, got nil")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newTestService(nil, nil)

	_, err := svc.Search(context.Background(), interfaces.SearchQuery{})
	if err == nil {
		t.Fatal("Expected error for empty query, got nil")
	}
}

func TestSearchHybridRanksDirectSymbolFirst(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_aapl", "benzinga", "Apple Q3 results", []string{"AAPL"},
			testChunk("doc_aapl", 0, "Revenue grew 8 percent [TICKER:AAPL]", nil),
		),
		testDoc("doc_tsla", "benzinga", "Tesla revenue outlook", []string{"TSLA"},
			testChunk("doc_tsla", 0, "Revenue fell short of estimates", nil),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Text:    "revenue",
		Symbols: []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Document.ID != "doc_aapl" {
		t.Errorf("Expected direct symbol match first, got %s", results[0].Document.ID)
	}
	// Direct symbol match plus one content term
	if results[0].Score != weightSymbolMatch+weightContentTerm {
		t.Errorf("Expected score %f, got %f", weightSymbolMatch+weightContentTerm, results[0].Score)
	}
	// Title term plus content term
	if results[1].Score != weightTitleTerm+weightContentTerm {
		t.Errorf("Expected score %f, got %f", weightTitleTerm+weightContentTerm, results[1].Score)
	}
}

func TestSearchGraphExpansion(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_aapl", "benzinga", "Apple supplier news", []string{"AAPL"},
			testChunk("doc_aapl", 0, "Apple signed a new supply agreement", nil),
		),
		testDoc("doc_partner", "polygon", "Supplier outlook", []string{"GNX"},
			testChunk("doc_partner", 0, "The component maker raised guidance", nil),
		),
		testDoc("doc_noise", "newsapi", "Unrelated market note", nil,
			testChunk("doc_noise", 0, "Broad indexes closed flat", nil),
		),
	}
	related := map[string][]string{"AAPL": {"doc_partner"}}
	svc := newTestService(docs, related)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Text: "What is related to AAPL?",
		Mode: models.ModeGraph,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Document.ID != "doc_aapl" || results[0].Score != weightSymbolMatch {
		t.Errorf("Expected direct match scored %f first, got %s scored %f",
			float64(weightSymbolMatch), results[0].Document.ID, results[0].Score)
	}
	if results[1].Document.ID != "doc_partner" || results[1].Score != weightGraphHop {
		t.Errorf("Expected graph hop scored %f second, got %s scored %f",
			float64(weightGraphHop), results[1].Document.ID, results[1].Score)
	}
}

func TestSearchCorroborationBonus(t *testing.T) {
	corroboratedDoc := testDoc("doc_checked", "benzinga", "Apple quote update", []string{"AAPL"},
		testChunk("doc_checked", 0, "Shares traded higher", nil),
	)
	corroboratedDoc.Metadata = map[string]interface{}{"corroborated_by": []string{"finnhub"}}

	docs := []*models.Document{
		testDoc("doc_single", "benzinga", "Apple market note", []string{"AAPL"},
			testChunk("doc_single", 0, "Shares traded lower", nil),
		),
		corroboratedDoc,
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Symbols: []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Document.ID != "doc_checked" {
		t.Errorf("Expected corroborated document first, got %s", results[0].Document.ID)
	}
	if results[0].Score != weightSymbolMatch+weightCorroboration {
		t.Errorf("Expected score %f, got %f", weightSymbolMatch+weightCorroboration, results[0].Score)
	}
}

func TestSearchSourceTypeFilter(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_news", "benzinga", "Apple coverage", []string{"AAPL"},
			testChunk("doc_news", 0, "Analysts weigh in", nil),
		),
		testDoc("doc_filing", "edgar", "Apple 10-Q", []string{"AAPL"},
			testChunk("doc_filing", 0, "Quarterly report filed", nil),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Symbols:     []string{"AAPL"},
		SourceTypes: []string{"edgar"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Document.ID != "doc_filing" {
		t.Errorf("Expected filing document, got %s", results[0].Document.ID)
	}
}

func TestSearchRequiredTermExcludesDocuments(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_div", "benzinga", "Apple payout news", []string{"AAPL"},
			testChunk("doc_div", 0, "Quarterly dividend raised [TICKER:AAPL]", nil),
		),
		testDoc("doc_other", "benzinga", "Apple product news", []string{"AAPL"},
			testChunk("doc_other", 0, "New hardware announced [TICKER:AAPL]", nil),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Text: "+dividend AAPL",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Document.ID != "doc_div" {
		t.Errorf("Expected doc_div, got %s", results[0].Document.ID)
	}
}

func TestSearchLimit(t *testing.T) {
	var docs []*models.Document
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("doc_%d", i)
		docs = append(docs, testDoc(id, "benzinga", "Apple note", []string{"AAPL"},
			testChunk(id, 0, "Apple commentary", nil),
		))
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Symbols: []string{"AAPL"},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
}

func TestSearchUnknownModeFallsBack(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_a", "benzinga", "Apple note", []string{"AAPL"},
			testChunk("doc_a", 0, "Apple commentary", nil),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Symbols: []string{"AAPL"},
		Mode:    models.QueryMode("fulltext"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected fallback mode to return 1 result, got %d", len(results))
	}
}

func TestSearchRelationshipLookupFailure(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_aapl", "benzinga", "Apple news", []string{"AAPL"},
			testChunk("doc_aapl", 0, "Apple commentary", nil),
		),
	}
	svc := NewService(
		&mockDocumentStorage{docs: docs},
		&mockEntityStorage{err: errors.New("store offline")},
		entities.NewExtractor([]string{"AAPL"}),
		&common.QueryConfig{Mode: "hybrid", TopK: 12},
		arbor.NewLogger(),
	)

	results, err := svc.Search(context.Background(), interfaces.SearchQuery{
		Symbols: []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected direct matches despite relationship failure, got %d results", len(results))
	}
}

func TestSearchHonorsCancelledContext(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_a", "benzinga", "Apple note", []string{"AAPL"},
			testChunk("doc_a", 0, "Apple commentary", nil),
		),
	}
	svc := newTestService(docs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Search(ctx, interfaces.SearchQuery{Symbols: []string{"AAPL"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestSearchDocuments(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_div", "benzinga", "Apple dividend history", []string{"AAPL"},
			testChunk("doc_div", 0, "The dividend grew every year", nil),
		),
		testDoc("doc_body", "polygon", "Tesla outlook", []string{"TSLA"},
			testChunk("doc_body", 0, "No dividend is paid", nil),
		),
		testDoc("doc_none", "newsapi", "Crypto roundup", nil,
			testChunk("doc_none", 0, "Token prices fell", nil),
		),
	}
	svc := newTestService(docs, nil)

	results, err := svc.SearchDocuments(context.Background(), "dividend", 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ID != "doc_div" {
		t.Errorf("Expected title match ranked first, got %s", results[0].ID)
	}
	if results[1].ID != "doc_body" {
		t.Errorf("Expected body match second, got %s", results[1].ID)
	}
}

func TestSearchDocumentsEmptyQueryListsRecent(t *testing.T) {
	docs := []*models.Document{
		testDoc("doc_1", "benzinga", "First", nil),
		testDoc("doc_2", "benzinga", "Second", nil),
		testDoc("doc_3", "benzinga", "Third", nil),
	}
	svc := newTestService(docs, nil)

	results, err := svc.SearchDocuments(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ID != "doc_1" {
		t.Errorf("Expected storage order preserved, got %s first", results[0].ID)
	}
}
