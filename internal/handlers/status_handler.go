package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
)

// connectorRegistry is the slice of the connector registry the status
// endpoint reports on.
type connectorRegistry interface {
	Enabled() []string
	BreakerStatus() []interfaces.BreakerStatus
}

// StatusHandler aggregates the application status surface: connector
// health, store counts, recent runs, mailbox syncs and scheduler state
type StatusHandler struct {
	registry  connectorRegistry
	documents interfaces.DocumentStorage
	entities  interfaces.EntityStorage
	runs      interfaces.RunStorage
	scheduler interfaces.SchedulerService
	email     interfaces.EmailService
	llm       interfaces.LLMService
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler. Optional services may
// be nil and their sections are omitted from the response.
func NewStatusHandler(
	registry connectorRegistry,
	documents interfaces.DocumentStorage,
	entities interfaces.EntityStorage,
	runs interfaces.RunStorage,
	scheduler interfaces.SchedulerService,
	email interfaces.EmailService,
	llm interfaces.LLMService,
	logger arbor.ILogger,
) *StatusHandler {
	return &StatusHandler{
		registry:  registry,
		documents: documents,
		entities:  entities,
		runs:      runs,
		scheduler: scheduler,
		email:     email,
		llm:       llm,
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{
		"status": "ok",
	}

	if h.registry != nil {
		response["connectors"] = map[string]interface{}{
			"enabled":  h.registry.Enabled(),
			"breakers": h.registry.BreakerStatus(),
		}
	}

	if h.documents != nil {
		if stats, err := h.documents.GetStats(); err == nil {
			response["storage"] = stats
		} else {
			h.logger.Warn().Err(err).Msg("Failed to load document stats")
		}
	}

	if h.entities != nil {
		if count, err := h.entities.CountEntities(); err == nil {
			response["entities"] = count
		}
	}

	if h.runs != nil {
		if summaries, err := h.runs.ListRunSummaries(r.Context(), 10); err == nil {
			response["runs"] = summaries
		} else {
			h.logger.Warn().Err(err).Msg("Failed to load run summaries")
		}
	}

	if h.email != nil {
		response["email"] = h.email.LastResults()
	}

	if h.scheduler != nil {
		response["jobs"] = h.scheduler.GetAllJobStatuses()
	}

	if h.llm != nil {
		response["llm"] = map[string]interface{}{
			"model":     h.llm.ModelName(),
			"available": h.llm.IsAvailable(r.Context()),
		}
	}

	WriteJSON(w, http.StatusOK, response)
}
