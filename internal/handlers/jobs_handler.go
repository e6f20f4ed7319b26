package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
)

// JobsHandler exposes the scheduler: listing registered jobs and
// triggering, enabling or disabling them by name.
type JobsHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListHandler handles GET /api/jobs
func (h *JobsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	statuses := h.scheduler.GetAllJobStatuses()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"jobs":    statuses,
		"count":   len(statuses),
	})
}

// ActionHandler handles POST /api/jobs/{name}/trigger, /api/jobs/{name}/enable
// and /api/jobs/{name}/disable
func (h *JobsHandler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	name, action, ok := jobActionFromPath(r.URL.Path)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid job path")
		return
	}

	var err error
	switch action {
	case "trigger":
		err = h.scheduler.TriggerJob(name)
	case "enable":
		err = h.scheduler.EnableJob(name)
	case "disable":
		err = h.scheduler.DisableJob(name)
	default:
		WriteError(w, http.StatusBadRequest, "Unknown job action: "+action)
		return
	}

	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().
		Str("job", name).
		Str("action", action).
		Msg("Job action applied")

	if action == "trigger" {
		WriteStarted(w, "Job "+name+" triggered")
		return
	}

	status, err := h.scheduler.GetJobStatus(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// jobActionFromPath splits /api/jobs/{name}/{action} into its parts
func jobActionFromPath(path string) (string, string, bool) {
	rest := strings.TrimPrefix(path, "/api/jobs/")
	if rest == path || rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
