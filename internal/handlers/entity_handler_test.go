package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/models"
)

// mockEntityStorage implements interfaces.EntityStorage for testing
type mockEntityStorage struct {
	findBySymbolFunc     func(symbol string, types []models.EntityType, limit int) ([]models.Entity, error)
	relatedDocumentsFunc func(normalized string, limit int) ([]string, error)
	countFunc            func() (int, error)
}

func (m *mockEntityStorage) SaveEntities(entities []models.Entity) error { return nil }
func (m *mockEntityStorage) SaveRelationships(relationships []models.Relationship) error {
	return nil
}

func (m *mockEntityStorage) FindByValue(normalized string, limit int) ([]models.Entity, error) {
	return nil, nil
}

func (m *mockEntityStorage) FindBySymbol(symbol string, types []models.EntityType, limit int) ([]models.Entity, error) {
	if m.findBySymbolFunc != nil {
		return m.findBySymbolFunc(symbol, types, limit)
	}
	return nil, nil
}

func (m *mockEntityStorage) FindByDocument(documentID string) ([]models.Entity, error) {
	return nil, nil
}

func (m *mockEntityStorage) RelatedDocuments(normalized string, limit int) ([]string, error) {
	if m.relatedDocumentsFunc != nil {
		return m.relatedDocumentsFunc(normalized, limit)
	}
	return nil, nil
}

func (m *mockEntityStorage) MetricInputs(symbol, metric, period string, limit int) ([]models.Entity, error) {
	return nil, nil
}

func (m *mockEntityStorage) CountEntities() (int, error) {
	if m.countFunc != nil {
		return m.countFunc()
	}
	return 0, nil
}

func (m *mockEntityStorage) DeleteByDocument(documentID string) error { return nil }
func (m *mockEntityStorage) ClearAll() error                          { return nil }

func TestEntityListHandler(t *testing.T) {
	var capturedSymbol string
	var capturedTypes []models.EntityType
	storage := &mockEntityStorage{
		findBySymbolFunc: func(symbol string, types []models.EntityType, limit int) ([]models.Entity, error) {
			capturedSymbol = symbol
			capturedTypes = types
			return []models.Entity{
				{ID: "e1", Type: models.EntityRating, Value: "Overweight", Normalized: "OVERWEIGHT", DocumentID: "d1"},
				{ID: "e2", Type: models.EntityRating, Value: "Buy", Normalized: "BUY", DocumentID: "d2"},
			}, nil
		},
	}

	handler := NewEntityHandler(storage, &mockDocumentStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/entities?symbol=aapl&type=rating,price_target", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if capturedSymbol != "AAPL" {
		t.Errorf("Expected symbol AAPL, got %q", capturedSymbol)
	}
	if len(capturedTypes) != 2 || capturedTypes[0] != models.EntityType("rating") {
		t.Errorf("Unexpected type filter: %v", capturedTypes)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if int(response["count"].(float64)) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}
	if response["symbol"] != "AAPL" {
		t.Errorf("Expected symbol echo, got %v", response["symbol"])
	}
}

func TestEntityListHandler_MissingSymbol(t *testing.T) {
	handler := NewEntityHandler(&mockEntityStorage{}, &mockDocumentStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/entities", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestEntityRelatedHandler(t *testing.T) {
	entityStorage := &mockEntityStorage{
		relatedDocumentsFunc: func(normalized string, limit int) ([]string, error) {
			if normalized != "AAPL" {
				t.Errorf("Expected normalized AAPL, got %q", normalized)
			}
			return []string{"d1", "gone", "d2"}, nil
		},
	}
	docStorage := &mockDocumentStorage{
		getFunc: func(id string) (*models.Document, error) {
			if id == "gone" {
				return nil, fmt.Errorf("document not found")
			}
			return newsDoc(id, "AAPL", 1), nil
		},
	}

	handler := NewEntityHandler(entityStorage, docStorage, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/entities/aapl/related", nil)
	rec := httptest.NewRecorder()
	handler.RelatedHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	ids := response["document_ids"].([]interface{})
	if len(ids) != 3 {
		t.Errorf("Expected 3 document IDs, got %d", len(ids))
	}

	// The deleted document is skipped from the loaded summaries
	docs := response["documents"].([]interface{})
	if len(docs) != 2 {
		t.Errorf("Expected 2 loadable documents, got %d", len(docs))
	}
}

func TestEntityValueFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/entities/AAPL/related", "AAPL"},
		{"/api/entities/related", "related"},
		{"/api/entities/a/b/related", ""},
		{"/other", ""},
	}

	for _, tt := range tests {
		if got := entityValueFromPath(tt.path); got != tt.want {
			t.Errorf("entityValueFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
