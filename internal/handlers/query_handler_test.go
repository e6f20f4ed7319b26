package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/attribution"
	"github.com/ternarybob/ice/internal/services/pdf"
)

// mockQueryService implements interfaces.QueryService for testing
type mockQueryService struct {
	processFunc func(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error)
}

func (m *mockQueryService) Process(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
	if m.processFunc != nil {
		return m.processFunc(ctx, req)
	}
	return &interfaces.QueryResult{Answer: &models.QueryAnswer{Text: "no answer"}}, nil
}

func newTestQueryHandler(service *mockQueryService) *QueryHandler {
	return NewQueryHandler(service, attribution.NewFormatter(nil), arbor.NewLogger())
}

func postQuery(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAskHandler_Success(t *testing.T) {
	mockService := &mockQueryService{
		processFunc: func(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
			return &interfaces.QueryResult{
				Answer: &models.QueryAnswer{
					Text: "Apple raised its quarterly dividend by 4 percent.",
					Sources: []models.SourceRef{
						{DocumentID: "doc-1", Title: "Apple Q3 Earnings", SourceType: "benzinga", Score: 0.91},
					},
					Elapsed: 120 * time.Millisecond,
				},
			}, nil
		},
	}

	handler := newTestQueryHandler(mockService)
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":"Did Apple raise its dividend?","detail":"summary"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["question"] != "Did Apple raise its dividend?" {
		t.Errorf("Expected question echo, got %v", response["question"])
	}
	if response["detail"] != "summary" {
		t.Errorf("Expected detail 'summary', got %v", response["detail"])
	}
	if response["text"] != "Apple raised its quarterly dividend by 4 percent." {
		t.Errorf("Unexpected text: %v", response["text"])
	}
	if answer, _ := response["answer"].(string); !strings.Contains(answer, "dividend") {
		t.Errorf("Expected formatted answer to contain the text, got %v", response["answer"])
	}
	if response["elapsed_ms"].(float64) != 120 {
		t.Errorf("Expected elapsed_ms 120, got %v", response["elapsed_ms"])
	}
}

func TestAskHandler_DetailDefaultsToSourced(t *testing.T) {
	var captured models.QueryRequest
	mockService := &mockQueryService{
		processFunc: func(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
			captured = req
			return &interfaces.QueryResult{Answer: &models.QueryAnswer{Text: "ok"}}, nil
		},
	}

	handler := newTestQueryHandler(mockService)
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":"What changed?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if captured.Detail != models.DetailSourced {
		t.Errorf("Expected default detail 'sourced', got %q", captured.Detail)
	}
}

func TestAskHandler_EmptyQuestion(t *testing.T) {
	handler := newTestQueryHandler(&mockQueryService{})
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":""}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["error"] != "Question field is required" {
		t.Errorf("Unexpected error message: %v", response["error"])
	}
	if int(response["status"].(float64)) != http.StatusBadRequest {
		t.Errorf("Expected status field 400, got %v", response["status"])
	}
}

func TestAskHandler_UnknownDetailLevel(t *testing.T) {
	handler := newTestQueryHandler(&mockQueryService{})
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":"q","detail":"everything"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestAskHandler_InvalidBody(t *testing.T) {
	handler := newTestQueryHandler(&mockQueryService{})
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestAskHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestQueryHandler(&mockQueryService{})
	req := httptest.NewRequest("GET", "/api/query", nil)
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", rec.Code)
	}
}

func TestAskHandler_PipelineError(t *testing.T) {
	mockService := &mockQueryService{
		processFunc: func(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
			return nil, fmt.Errorf("no documents ingested")
		},
	}

	handler := newTestQueryHandler(mockService)
	rec := postQuery(handler.AskHandler, "/api/query", `{"question":"anything"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if msg, _ := response["error"].(string); !strings.Contains(msg, "no documents ingested") {
		t.Errorf("Expected wrapped pipeline error, got %v", response["error"])
	}
}

func TestExportHandler_RendersPDF(t *testing.T) {
	mockService := &mockQueryService{
		processFunc: func(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
			return &interfaces.QueryResult{
				Answer: &models.QueryAnswer{Text: "Revenue grew 12 percent year over year."},
			}, nil
		},
	}

	formatter := attribution.NewFormatter(pdf.NewService(arbor.NewLogger()))
	handler := NewQueryHandler(mockService, formatter, arbor.NewLogger())

	rec := postQuery(handler.ExportHandler, "/api/query/export", `{"question":"How did revenue move?","detail":"summary"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected Content-Type application/pdf, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "research-answer.pdf") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}
	body := rec.Body.Bytes()
	if len(body) < 4 || string(body[:4]) != "%PDF" {
		t.Errorf("Expected PDF magic bytes, got %q", body[:min(len(body), 8)])
	}
}
