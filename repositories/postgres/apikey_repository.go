package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
)

const apiKeyColumns = `
	id, created_at, updated_at, provider, provider_name, key_encrypted, key_hash, key_label,
	is_enabled, is_deleted, total_requests, successful_requests, failed_requests, rate_limit_hits,
	avg_latency_ms, last_used_at, last_error, last_error_at, priority, notes, metadata`

// APIKeyRepository implements repositories.APIKeyRepository
type APIKeyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB, logger *zap.Logger) repositories.APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger,
	}
}

// ListEnabled returns the selectable keys in priority order
func (r *APIKeyRepository) ListEnabled(ctx context.Context) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE is_enabled = true AND is_deleted = false
		ORDER BY priority ASC`

	return r.queryKeys(ctx, query)
}

// List returns every non-deleted key in priority order
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE is_deleted = false
		ORDER BY priority ASC`

	return r.queryKeys(ctx, query)
}

// GetByID retrieves a non-deleted key
func (r *APIKeyRepository) GetByID(ctx context.Context, id int64) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE id = $1 AND is_deleted = false`

	executor := GetExecutor(ctx, r.db)
	key, err := scanAPIKey(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// Create inserts a new key and sets its generated ID
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (
			provider, provider_name, key_encrypted, key_hash, key_label, is_enabled, priority, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		key.Provider,
		key.ProviderName,
		key.KeyEncrypted,
		key.KeyHash,
		key.KeyLabel,
		key.IsEnabled,
		key.Priority,
		key.Notes,
	).Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	r.logger.Info("api key created",
		zap.Int64("key_id", key.ID),
		zap.String("provider", key.Provider))
	return nil
}

// Update applies the non-nil fields of update
func (r *APIKeyRepository) Update(ctx context.Context, id int64, update models.APIKeyUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.IsEnabled != nil {
		add("is_enabled", *update.IsEnabled)
	}
	if update.KeyLabel != nil {
		add("key_label", *update.KeyLabel)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}
	if len(sets) == 0 {
		return fmt.Errorf("no fields to update for api key %d", id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE api_keys SET %s WHERE id = $%d AND is_deleted = false`,
		strings.Join(sets, ", "), len(args))

	return r.execOne(ctx, id, "update", query, args...)
}

// SoftDelete marks the key deleted and disabled
func (r *APIKeyRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE api_keys
		SET is_deleted = true, is_enabled = false, updated_at = NOW()
		WHERE id = $1 AND is_deleted = false
	`
	return r.execOne(ctx, id, "delete", query, id)
}

// RecordSuccess updates the success counters. avg_latency_ms is a running
// mean over successful requests.
func (r *APIKeyRepository) RecordSuccess(ctx context.Context, id int64, latencyMs int64) error {
	query := `
		UPDATE api_keys
		SET total_requests = total_requests + 1,
		    successful_requests = successful_requests + 1,
		    avg_latency_ms = (avg_latency_ms * successful_requests + $2) / (successful_requests + 1),
		    last_used_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, id, "record success", query, id, latencyMs)
}

// RecordError updates the failure counters
func (r *APIKeyRepository) RecordError(ctx context.Context, id int64, message string, rateLimited bool) error {
	query := `
		UPDATE api_keys
		SET total_requests = total_requests + 1,
		    failed_requests = failed_requests + 1,
		    rate_limit_hits = rate_limit_hits + CASE WHEN $3 THEN 1 ELSE 0 END,
		    last_error = $2,
		    last_error_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, id, "record error", query, id, message, rateLimited)
}

func (r *APIKeyRepository) execOne(ctx context.Context, id int64, op, query string, args ...interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s api key: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("api key %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func (r *APIKeyRepository) queryKeys(ctx context.Context, query string, args ...interface{}) ([]*models.APIKey, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	key := &models.APIKey{}
	var metadata []byte
	err := row.Scan(
		&key.ID,
		&key.CreatedAt,
		&key.UpdatedAt,
		&key.Provider,
		&key.ProviderName,
		&key.KeyEncrypted,
		&key.KeyHash,
		&key.KeyLabel,
		&key.IsEnabled,
		&key.IsDeleted,
		&key.TotalRequests,
		&key.SuccessfulRequests,
		&key.FailedRequests,
		&key.RateLimitHits,
		&key.AvgLatencyMs,
		&key.LastUsedAt,
		&key.LastError,
		&key.LastErrorAt,
		&key.Priority,
		&key.Notes,
		&metadata,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		key.Metadata = metadata
	}
	return key, nil
}
