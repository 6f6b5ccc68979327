package repositories

import (
	"context"
	"errors"

	"github.com/upb/llm-failover-router/models"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned Transaction's Context
	// carries the transaction so repositories pick it up.
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// APIKeyRepository handles the provider credential catalog
type APIKeyRepository interface {
	// ListEnabled returns enabled, non-deleted keys ordered by priority ascending
	ListEnabled(ctx context.Context) ([]*models.APIKey, error)

	// List returns every non-deleted key ordered by priority ascending
	List(ctx context.Context) ([]*models.APIKey, error)

	GetByID(ctx context.Context, id int64) (*models.APIKey, error)

	// Create inserts a key and sets its ID
	Create(ctx context.Context, key *models.APIKey) error

	// Update applies the non-nil fields of update
	Update(ctx context.Context, id int64, update models.APIKeyUpdate) error

	// SoftDelete marks the key deleted and disabled
	SoftDelete(ctx context.Context, id int64) error

	// RecordSuccess bumps the success counters and the running average latency
	RecordSuccess(ctx context.Context, id int64, latencyMs int64) error

	// RecordError bumps the failure counters; rateLimited also bumps rate_limit_hits
	RecordError(ctx context.Context, id int64, message string, rateLimited bool) error
}

// AILogRepository handles per-attempt outcome logs
type AILogRepository interface {
	Insert(ctx context.Context, log *models.AILog) error

	// ListRecent returns the newest rows first
	ListRecent(ctx context.Context, limit int) ([]*models.AILog, error)

	// ListByKey returns the newest rows for one key first
	ListByKey(ctx context.Context, keyID int64, limit int) ([]*models.AILog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	APIKeys APIKeyRepository
	AILogs  AILogRepository
}
