package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
)

// MailerServiceInterface is the slice of the mailer the handlers use
type MailerServiceInterface interface {
	IsConfigured() bool
	SendTestEmail(ctx context.Context, to string) error
	SendDigest(ctx context.Context) error
}

// MailerHandler exposes the digest mailer: a configuration test send
// and an on-demand digest.
type MailerHandler struct {
	mailer MailerServiceInterface
	logger arbor.ILogger
}

// NewMailerHandler creates a new mailer handler
func NewMailerHandler(mailer MailerServiceInterface, logger arbor.ILogger) *MailerHandler {
	return &MailerHandler{
		mailer: mailer,
		logger: logger,
	}
}

// SendTestHandler handles POST /api/mailer/test
func (h *MailerHandler) SendTestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.mailer == nil || !h.mailer.IsConfigured() {
		WriteError(w, http.StatusServiceUnavailable, "Mailer is not configured")
		return
	}

	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" {
		WriteError(w, http.StatusBadRequest, "Email address is required")
		return
	}

	if err := h.mailer.SendTestEmail(r.Context(), req.To); err != nil {
		h.logger.Error().Err(err).Str("to", req.To).Msg("Test email failed")
		WriteError(w, http.StatusInternalServerError, "Failed to send test email: "+err.Error())
		return
	}

	h.logger.Info().Str("to", req.To).Msg("Test email sent")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"message": "Test email sent to " + req.To,
	})
}

// SendDigestHandler handles POST /api/mailer/digest
func (h *MailerHandler) SendDigestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.mailer == nil || !h.mailer.IsConfigured() {
		WriteError(w, http.StatusServiceUnavailable, "Mailer is not configured")
		return
	}

	if err := h.mailer.SendDigest(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Digest send failed")
		WriteError(w, http.StatusInternalServerError, "Failed to send digest: "+err.Error())
		return
	}

	h.logger.Info().Msg("Digest sent")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"message": "Digest sent",
	})
}
