package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// WrapDB adopts an already opened pool.
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings the database and runs a trivial query
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		provider VARCHAR(20) NOT NULL CHECK (provider IN ('groq', 'deepseek', 'gemini')),
		provider_name VARCHAR(100),
		key_encrypted TEXT NOT NULL,
		key_hash VARCHAR(64) NOT NULL UNIQUE,
		key_label VARCHAR(100),
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		is_deleted BOOLEAN NOT NULL DEFAULT false,
		total_requests BIGINT NOT NULL DEFAULT 0,
		successful_requests BIGINT NOT NULL DEFAULT 0,
		failed_requests BIGINT NOT NULL DEFAULT 0,
		rate_limit_hits BIGINT NOT NULL DEFAULT 0,
		avg_latency_ms BIGINT NOT NULL DEFAULT 0,
		last_used_at TIMESTAMPTZ,
		last_error TEXT,
		last_error_at TIMESTAMPTZ,
		priority INTEGER NOT NULL DEFAULT 100,
		notes TEXT,
		metadata JSONB
	);

	CREATE TABLE IF NOT EXISTS ai_logs (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		prompt_hash VARCHAR(64) NOT NULL,
		prompt_preview TEXT,
		response_preview TEXT,
		provider VARCHAR(20) NOT NULL,
		model VARCHAR(100),
		api_key_id BIGINT REFERENCES api_keys(id) ON DELETE SET NULL,
		latency_ms BIGINT,
		tokens_used INTEGER,
		status_code INTEGER,
		success BOOLEAN NOT NULL DEFAULT false,
		error_message TEXT,
		session_id VARCHAR(255),
		user_agent TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_api_keys_selectable ON api_keys(priority) WHERE is_enabled AND NOT is_deleted;
	CREATE INDEX IF NOT EXISTS idx_ai_logs_created_at ON ai_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_ai_logs_api_key_id ON ai_logs(api_key_id);
`

// InitSchema creates the api_keys and ai_logs tables if absent
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
