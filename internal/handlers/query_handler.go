package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/attribution"
)

// QueryHandler handles research question HTTP requests
type QueryHandler struct {
	queryService interfaces.QueryService
	formatter    *attribution.Formatter
	logger       arbor.ILogger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryService interfaces.QueryService, formatter *attribution.Formatter, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		formatter:    formatter,
		logger:       logger,
	}
}

// AskHandler handles POST /api/query requests
func (h *QueryHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Int("question_length", len(req.Question)).
		Str("detail", string(req.Detail)).
		Msg("Processing query request")

	result, err := h.queryService.Process(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Query pipeline failed")
		WriteError(w, http.StatusInternalServerError, "Failed to answer question: "+err.Error())
		return
	}

	answer := result.Answer
	formatted := h.formatter.Format(answer, result.Chunks, req.Detail)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"question":     req.Question,
		"detail":       req.Detail,
		"answer":       formatted,
		"text":         answer.Text,
		"sentences":    answer.Sentences,
		"sources":      answer.Sources,
		"calculations": answer.Calculations,
		"entities":     answer.Entities,
		"fallback":     answer.Fallback,
		"elapsed_ms":   answer.Elapsed.Milliseconds(),
	})
}

// ExportHandler handles POST /api/query/export requests and responds
// with the formatted answer rendered to PDF
func (h *QueryHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.queryService.Process(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Query pipeline failed")
		WriteError(w, http.StatusInternalServerError, "Failed to answer question: "+err.Error())
		return
	}

	title := fmt.Sprintf("Research answer %s", time.Now().Format("2006-01-02"))
	markdown := h.formatter.Format(result.Answer, result.Chunks, req.Detail)

	pdfBytes, err := h.formatter.ToPDF(markdown, title)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render answer PDF")
		WriteError(w, http.StatusInternalServerError, "Failed to render PDF: "+err.Error())
		return
	}

	h.logger.Info().
		Int("pdf_size", len(pdfBytes)).
		Str("detail", string(req.Detail)).
		Msg("Answer exported to PDF")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="research-answer.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdfBytes)
}

// decodeRequest parses and validates the query request body. Detail
// defaults to sourced, matching what the web clients render.
func (h *QueryHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (models.QueryRequest, bool) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode query request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}

	if req.Question == "" {
		WriteError(w, http.StatusBadRequest, "Question field is required")
		return req, false
	}

	if req.Detail == "" {
		req.Detail = models.DetailSourced
	}
	switch req.Detail {
	case models.DetailSummary, models.DetailSourced, models.DetailDetailed, models.DetailForensic:
	default:
		WriteError(w, http.StatusBadRequest, "Unknown detail level: "+string(req.Detail))
		return req, false
	}

	return req, true
}
