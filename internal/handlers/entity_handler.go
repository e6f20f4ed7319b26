package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// EntityHandler handles extracted entity HTTP requests
type EntityHandler struct {
	entityStorage   interfaces.EntityStorage
	documentStorage interfaces.DocumentStorage
	logger          arbor.ILogger
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(entityStorage interfaces.EntityStorage, documentStorage interfaces.DocumentStorage, logger arbor.ILogger) *EntityHandler {
	return &EntityHandler{
		entityStorage:   entityStorage,
		documentStorage: documentStorage,
		logger:          logger,
	}
}

// ListHandler handles GET /api/entities?symbol=AAPL&type=rating,price_target
func (h *EntityHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	symbol := strings.ToUpper(query.Get("symbol"))
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol parameter is required")
		return
	}

	limit := QueryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	var types []models.EntityType
	if raw := query.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, models.EntityType(t))
			}
		}
	}

	entities, err := h.entityStorage.FindBySymbol(symbol, types, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to find entities")
		WriteError(w, http.StatusInternalServerError, "Failed to find entities")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"count":    len(entities),
		"entities": entities,
	})
}

// RelatedHandler handles GET /api/entities/{value}/related, returning
// the documents linked to a normalized entity value through stored
// relationships
func (h *EntityHandler) RelatedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	value := entityValueFromPath(r.URL.Path)
	if value == "" {
		WriteError(w, http.StatusBadRequest, "Entity value is required")
		return
	}

	limit := QueryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	normalized := strings.ToUpper(value)
	documentIDs, err := h.entityStorage.RelatedDocuments(normalized, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("entity", normalized).Msg("Failed to find related documents")
		WriteError(w, http.StatusInternalServerError, "Failed to find related documents")
		return
	}

	documents := make([]*models.Document, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := h.documentStorage.GetDocument(id)
		if err != nil {
			// Relationship rows can outlive a deleted document
			h.logger.Debug().Str("document_id", id).Msg("Related document no longer stored")
			continue
		}
		documents = append(documents, doc)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity":       normalized,
		"document_ids": documentIDs,
		"documents":    summarizeDocuments(documents),
	})
}

// entityValueFromPath extracts the value from /api/entities/{value}/related
func entityValueFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/entities/")
	trimmed = strings.TrimSuffix(trimmed, "/related")
	if trimmed == path || strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}
