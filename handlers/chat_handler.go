package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/middleware"
	"github.com/upb/llm-failover-router/services/routing"
	"github.com/upb/llm-failover-router/utils"
)

// maxChatBodyBytes bounds a chat request body.
const maxChatBodyBytes = 64 << 10

// Router answers a prompt through the provider failover chain.
type Router interface {
	Route(ctx context.Context, prompt string, opts routing.Options) (*routing.Outcome, error)
}

// ChatRequest is the public chat payload. Prompt is decoded loosely so a
// non-string value can be rejected with a clear message.
type ChatRequest struct {
	Prompt      interface{} `json:"prompt"`
	MaxTokens   *int        `json:"maxTokens,omitempty" validate:"omitempty,gt=0,max=8192"`
	Temperature *float64    `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// ChatResponse is returned for both provider answers and the static fallback.
type ChatResponse struct {
	Text          string                 `json:"text"`
	Provider      string                 `json:"provider"`
	Model         string                 `json:"model"`
	Latency       int64                  `json:"latency"`
	Orchestration *routing.Orchestration `json:"orchestration,omitempty"`
}

// ChatHandler serves the public chat endpoint
type ChatHandler struct {
	router Router
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(router Router, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router: router,
		logger: logger,
	}
}

// HandleChat handles POST /api/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req ChatRequest
	if err := utils.DecodeJSON(w, r, &req, maxChatBodyBytes); err != nil {
		h.logger.Warn("failed to parse chat request",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	prompt, ok := req.Prompt.(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		_ = utils.WriteBadRequest(w, "Prompt is required and must be a string", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	opts := routing.Options{RequestID: requestID}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}

	outcome, err := h.router.Route(ctx, prompt, opts)
	if err != nil {
		h.logger.Error("routing failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if !outcome.IsSuccess() {
		h.logger.Warn("serving static fallback",
			zap.String("request_id", requestID),
			zap.String("reason", string(outcome.Reason)))
	}

	if err := utils.WriteJSON(w, http.StatusOK, ChatResponse{
		Text:          outcome.Text,
		Provider:      outcome.Provider,
		Model:         outcome.Model,
		Latency:       outcome.LatencyMs,
		Orchestration: outcome.Orchestration,
	}); err != nil {
		h.logger.Error("failed to write chat response", zap.Error(err))
	}
}
