package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/services/kv"
)

// KVHandler manages the key/value store that holds vendor API keys and
// settings. List responses mask values so credentials do not leak into
// casual GETs; the single-key GET returns the real value for editing.
type KVHandler struct {
	kvService *kv.Service
	logger    arbor.ILogger
}

// NewKVHandler creates a new key/value handler
func NewKVHandler(kvService *kv.Service, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kvService: kvService,
		logger:    logger,
	}
}

type kvRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type maskedPair struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
}

// ListKVHandler handles GET /api/kv
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	pairs, err := h.kvService.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list keys: "+err.Error())
		return
	}

	masked := make([]maskedPair, 0, len(pairs))
	for _, pair := range pairs {
		masked = append(masked, maskedPair{
			Key:         pair.Key,
			Value:       maskValue(pair.Value),
			Description: pair.Description,
			UpdatedAt:   pair.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pairs": masked,
		"count": len(masked),
	})
}

// GetKVHandler handles GET /api/kv/{key}, returning the unmasked value
func (h *KVHandler) GetKVHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := kvKeyFromPath(w, r)
	if !ok {
		return
	}

	pair, err := h.kvService.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found: "+key)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get key: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, pair)
}

// CreateKVHandler handles POST /api/kv
func (h *KVHandler) CreateKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req kvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		WriteError(w, http.StatusBadRequest, "Key is required")
		return
	}

	duplicate, err := h.duplicateKey(r, req.Key)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to check for duplicate key: "+err.Error())
		return
	}
	if duplicate != "" {
		WriteError(w, http.StatusConflict, "Key already exists: "+duplicate)
		return
	}

	if err := h.kvService.Set(r.Context(), req.Key, req.Value, req.Description); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to create key: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"key":    req.Key,
	})
}

// UpdateKVHandler handles PUT /api/kv/{key}. An empty value keeps the
// stored one so descriptions can be edited without re-entering secrets.
func (h *KVHandler) UpdateKVHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := kvKeyFromPath(w, r)
	if !ok {
		return
	}

	var req kvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	value := req.Value
	if value == "" {
		if existing, err := h.kvService.GetPair(r.Context(), key); err == nil {
			value = existing.Value
		}
	}

	created, err := h.kvService.Upsert(r.Context(), key, value, req.Description)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to update key: "+err.Error())
		return
	}

	status := http.StatusOK
	result := "updated"
	if created {
		status = http.StatusCreated
		result = "created"
	}
	WriteJSON(w, status, map[string]string{
		"status": result,
		"key":    key,
	})
}

// DeleteKVHandler handles DELETE /api/kv/{key}
func (h *KVHandler) DeleteKVHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := kvKeyFromPath(w, r)
	if !ok {
		return
	}

	if err := h.kvService.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found: "+key)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to delete key: "+err.Error())
		return
	}

	h.logger.Info().Str("key", key).Msg("Key deleted")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"key":    key,
	})
}

// duplicateKey returns the stored key that matches the candidate
// case-insensitively, or empty when none does
func (h *KVHandler) duplicateKey(r *http.Request, key string) (string, error) {
	pairs, err := h.kvService.List(r.Context())
	if err != nil {
		return "", err
	}
	for _, pair := range pairs {
		if strings.EqualFold(pair.Key, key) {
			return pair.Key, nil
		}
	}
	return "", nil
}

// kvKeyFromPath extracts and unescapes the key from /api/kv/{key}
func kvKeyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/kv/")
	if raw == "" || raw == r.URL.Path || strings.Contains(raw, "/") {
		WriteError(w, http.StatusBadRequest, "Key is required")
		return "", false
	}
	key, err := url.QueryUnescape(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}
	return key, true
}

// maskValue hides all but the edges of a stored value
func maskValue(value string) string {
	if len(value) <= 8 {
		return "••••••••"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
