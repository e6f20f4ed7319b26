package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// DocumentHandler handles document store HTTP requests
type DocumentHandler struct {
	documentStorage interfaces.DocumentStorage
	searchService   interfaces.SearchService
	logger          arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentStorage interfaces.DocumentStorage, searchService interfaces.SearchService, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		documentStorage: documentStorage,
		searchService:   searchService,
		logger:          logger,
	}
}

// StatsHandler handles GET /api/documents/stats
func (h *DocumentHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.documentStorage.GetStats()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get document stats")
		WriteError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// ListHandler handles GET /api/documents with filtering, and keyword
// search when the q parameter is present
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	limit := QueryInt(r, "limit", 20)
	if limit > 200 {
		limit = 200
	}
	offset := QueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	if q := query.Get("q"); q != "" {
		h.searchDocuments(w, r, q, limit)
		return
	}

	filter := &models.DocumentFilter{
		SourceType: query.Get("source_type"),
		Symbol:     strings.ToUpper(query.Get("symbol")),
		Tag:        query.Get("tag"),
		Limit:      limit,
		Offset:     offset,
	}

	if since := query.Get("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid since parameter, expected RFC3339 timestamp")
			return
		}
		filter.Since = parsed
	}

	docs, err := h.documentStorage.ListDocuments(filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	totalCount, err := h.countForFilter(filter)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count documents")
		totalCount = len(docs)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents":   summarizeDocuments(docs),
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetHandler handles GET /api/documents/{id}
func (h *DocumentHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := documentIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.documentStorage.GetDocument(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}

// DeleteHandler handles DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := documentIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	if _, err := h.documentStorage.GetDocument(id); err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	if err := h.documentStorage.DeleteDocument(id); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete document")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	h.logger.Info().Str("id", id).Msg("Document deleted")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     id,
	})
}

func (h *DocumentHandler) searchDocuments(w http.ResponseWriter, r *http.Request, q string, limit int) {
	if h.searchService == nil {
		WriteError(w, http.StatusServiceUnavailable, "Search is not available")
		return
	}

	docs, err := h.searchService.SearchDocuments(r.Context(), q, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("query", q).Msg("Document search failed")
		WriteError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents":   summarizeDocuments(docs),
		"total_count": len(docs),
		"limit":       limit,
		"offset":      0,
		"query":       q,
	})
}

// countForFilter approximates the unpaginated total. Only the source
// type filter has a cheap count; other filters fall back to the overall
// store size.
func (h *DocumentHandler) countForFilter(filter *models.DocumentFilter) (int, error) {
	if filter.SourceType != "" {
		return h.documentStorage.CountDocumentsBySource(filter.SourceType)
	}
	return h.documentStorage.CountDocuments()
}

// documentSummary is the list-view shape: everything except chunk
// bodies and embeddings, which dominate the stored size.
type documentSummary struct {
	ID         string    `json:"id"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id,omitempty"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	Symbols    []string  `json:"symbols,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func summarizeDocuments(docs []*models.Document) []documentSummary {
	summaries := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		summaries = append(summaries, documentSummary{
			ID:         doc.ID,
			SourceType: doc.SourceType,
			SourceID:   doc.SourceID,
			Title:      doc.Title,
			URL:        doc.URL,
			Symbols:    doc.Symbols,
			Tags:       doc.Tags,
			ChunkCount: len(doc.Chunks),
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return summaries
}

// documentIDFromPath extracts the ID from /api/documents/{id}
func documentIDFromPath(path string) string {
	id := strings.TrimPrefix(path, "/api/documents/")
	if id == path || strings.Contains(id, "/") {
		return ""
	}
	return id
}
