package models

import (
	"time"
)

// AILog is one routed attempt outcome as persisted in ai_logs.
type AILog struct {
	ID        int64     `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	PromptHash      string  `json:"prompt_hash" db:"prompt_hash"`
	PromptPreview   *string `json:"prompt_preview,omitempty" db:"prompt_preview"`
	ResponsePreview *string `json:"response_preview,omitempty" db:"response_preview"`

	Provider     string  `json:"provider" db:"provider"`
	Model        *string `json:"model,omitempty" db:"model"`
	APIKeyID     *int64  `json:"api_key_id,omitempty" db:"api_key_id"`
	LatencyMs    *int64  `json:"latency_ms,omitempty" db:"latency_ms"`
	TokensUsed   *int    `json:"tokens_used,omitempty" db:"tokens_used"`
	StatusCode   *int    `json:"status_code,omitempty" db:"status_code"`
	Success      bool    `json:"success" db:"success"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	SessionID *string `json:"session_id,omitempty" db:"session_id"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
}

// TableName returns the table name for the AILog model
func (AILog) TableName() string {
	return "ai_logs"
}

// NewAILog creates a log row for a provider attempt.
func NewAILog(provider, promptHash string, keyID int64) *AILog {
	return &AILog{
		CreatedAt:  time.Now(),
		PromptHash: promptHash,
		Provider:   provider,
		APIKeyID:   &keyID,
	}
}

// WithSuccess marks the row successful and fills response details.
func (l *AILog) WithSuccess(model, responsePreview string, latencyMs int64) *AILog {
	status := 200
	l.Success = true
	l.Model = &model
	l.ResponsePreview = &responsePreview
	l.LatencyMs = &latencyMs
	l.StatusCode = &status
	return l
}

// WithError marks the row failed.
func (l *AILog) WithError(statusCode int, message string) *AILog {
	l.Success = false
	l.ErrorMessage = &message
	if statusCode > 0 {
		l.StatusCode = &statusCode
	}
	return l
}

// WithSession sets the request id the attempt belongs to.
func (l *AILog) WithSession(sessionID string) *AILog {
	if sessionID != "" {
		l.SessionID = &sessionID
	}
	return l
}
