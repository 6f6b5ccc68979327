package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
)

const (
	aiLogColumns = `
		id, created_at, prompt_hash, prompt_preview, response_preview, provider, model,
		api_key_id, latency_ms, tokens_used, status_code, success, error_message, session_id, user_agent`

	defaultLogLimit = 50
	maxLogLimit     = 500
)

// AILogRepository implements repositories.AILogRepository
type AILogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAILogRepository creates a new ai_logs repository
func NewAILogRepository(db *DB, logger *zap.Logger) repositories.AILogRepository {
	return &AILogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a log row and sets its ID
func (r *AILogRepository) Insert(ctx context.Context, log *models.AILog) error {
	query := `
		INSERT INTO ai_logs (
			prompt_hash, prompt_preview, response_preview, provider, model, api_key_id,
			latency_ms, tokens_used, status_code, success, error_message, session_id, user_agent
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		log.PromptHash,
		log.PromptPreview,
		log.ResponsePreview,
		log.Provider,
		log.Model,
		log.APIKeyID,
		log.LatencyMs,
		log.TokensUsed,
		log.StatusCode,
		log.Success,
		log.ErrorMessage,
		log.SessionID,
		log.UserAgent,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ai log: %w", err)
	}

	r.logger.Debug("ai log inserted",
		zap.Int64("id", log.ID),
		zap.String("provider", log.Provider),
		zap.Bool("success", log.Success))
	return nil
}

// ListRecent returns the newest rows first
func (r *AILogRepository) ListRecent(ctx context.Context, limit int) ([]*models.AILog, error) {
	query := `SELECT ` + aiLogColumns + `
		FROM ai_logs
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryLogs(ctx, query, clampLimit(limit))
}

// ListByKey returns the newest rows for one key first
func (r *AILogRepository) ListByKey(ctx context.Context, keyID int64, limit int) ([]*models.AILog, error) {
	query := `SELECT ` + aiLogColumns + `
		FROM ai_logs
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryLogs(ctx, query, keyID, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}

func (r *AILogRepository) queryLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AILog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ai logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AILog, 0)
	for rows.Next() {
		log := &models.AILog{}
		err := rows.Scan(
			&log.ID,
			&log.CreatedAt,
			&log.PromptHash,
			&log.PromptPreview,
			&log.ResponsePreview,
			&log.Provider,
			&log.Model,
			&log.APIKeyID,
			&log.LatencyMs,
			&log.TokensUsed,
			&log.StatusCode,
			&log.Success,
			&log.ErrorMessage,
			&log.SessionID,
			&log.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ai logs: %w", err)
	}
	return logs, nil
}
