package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/services/keys"
	"github.com/upb/llm-failover-router/utils"
)

// KeyService administers stored credentials
type KeyService interface {
	Create(ctx context.Context, in keys.CreateInput) (*keys.Created, error)
	List(ctx context.Context) ([]*models.APIKey, error)
	Update(ctx context.Context, id int64, update models.APIKeyUpdate) error
	Delete(ctx context.Context, id int64) error
	KeyLogs(ctx context.Context, id int64, limit int) ([]*models.AILog, error)
	RecentLogs(ctx context.Context, limit int) ([]*models.AILog, error)
}

// CreateKeyRequest is the body of POST /api/admin/keys.
type CreateKeyRequest struct {
	Provider string `json:"provider" validate:"required,provider"`
	APIKey   string `json:"apiKey" validate:"required,max=512"`
	Label    string `json:"label,omitempty" validate:"max=255"`
	Priority *int   `json:"priority,omitempty" validate:"omitempty,gte=0"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// KeysHandler handles the admin key endpoints
type KeysHandler struct {
	service KeyService
	logger  *zap.Logger
}

// NewKeysHandler creates a new KeysHandler
func NewKeysHandler(service KeyService, logger *zap.Logger) *KeysHandler {
	return &KeysHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api/admin/keys
func (h *KeysHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := utils.DecodeJSON(w, r, &req, 16<<10); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	created, err := h.service.Create(r.Context(), keys.CreateInput{
		Provider: req.Provider,
		APIKey:   req.APIKey,
		Label:    req.Label,
		Priority: req.Priority,
		Enabled:  req.Enabled,
		Notes:    req.Notes,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, created)
}

// HandleList handles GET /api/admin/keys
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleUpdate handles PATCH /api/admin/keys/{id}
func (h *KeysHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.keyID(w, r)
	if !ok {
		return
	}

	var update models.APIKeyUpdate
	if err := utils.DecodeJSON(w, r, &update, 16<<10); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&update); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.service.Update(r.Context(), id, update); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"id": id, "updated": true})
}

// HandleDelete handles DELETE /api/admin/keys/{id}
func (h *KeysHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.keyID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleKeyLogs handles GET /api/admin/keys/{id}/logs
func (h *KeysHandler) HandleKeyLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.keyID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	logs, err := h.service.KeyLogs(r.Context(), id, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, logs)
}

// HandleRecentLogs handles GET /api/admin/logs
func (h *KeysHandler) HandleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	logs, err := h.service.RecentLogs(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, logs)
}

func (h *KeysHandler) keyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return 0, false
	}
	return id, true
}

func (h *KeysHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := utils.QueryInt(r, "limit", keys.DefaultLogLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return 0, false
	}
	return limit, true
}
