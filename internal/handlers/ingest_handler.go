package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
)

// IngestHandler handles manual pipeline trigger HTTP requests
type IngestHandler struct {
	ingestionService interfaces.IngestionService
	emailService     interfaces.EmailService
	logger           arbor.ILogger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestionService interfaces.IngestionService, emailService interfaces.EmailService, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		ingestionService: ingestionService,
		emailService:     emailService,
		logger:           logger,
	}
}

// RunHandler handles POST /api/ingest/run. An empty or "all" source
// runs every enabled connector. The run executes in the background;
// progress streams over the websocket and the outcome lands in the run
// summaries.
func (h *IngestHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Source string `json:"source"`
	}
	if r.Body != nil {
		// An empty body means run everything
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	source := req.Source
	h.logger.Info().Str("source", source).Msg("Manual ingestion run triggered")

	// The request context ends with the response, so the run gets its own
	go func() {
		ctx := context.Background()
		var err error
		if source == "" || source == "all" {
			_, err = h.ingestionService.RunAll(ctx)
		} else {
			_, err = h.ingestionService.RunSource(ctx, source)
		}
		if err != nil {
			h.logger.Error().Err(err).Str("source", source).Msg("Manual ingestion run failed")
		}
	}()

	if source == "" {
		source = "all"
	}
	WriteStarted(w, "Ingestion run started for "+source)
}

// EmailSyncHandler handles POST /api/ingest/email
func (h *IngestHandler) EmailSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.emailService == nil {
		WriteError(w, http.StatusServiceUnavailable, "Email sync is not configured")
		return
	}

	h.logger.Info().Msg("Manual email sync triggered")

	go func() {
		results := h.emailService.SyncAll(context.Background())
		for _, result := range results {
			if result.Error != "" {
				h.logger.Error().
					Str("account", result.Account).
					Str("error", result.Error).
					Msg("Manual email sync failed for account")
			}
		}
	}()

	WriteStarted(w, "Email sync started")
}
