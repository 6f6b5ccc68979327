package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
)

var apiKeyColumnNames = []string{
	"id", "created_at", "updated_at", "provider", "provider_name", "key_encrypted", "key_hash", "key_label",
	"is_enabled", "is_deleted", "total_requests", "successful_requests", "failed_requests", "rate_limit_hits",
	"avg_latency_ms", "last_used_at", "last_error", "last_error_at", "priority", "notes", "metadata",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func keyRow(rows *sqlmock.Rows, id int64, provider string, priority int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, now, now, provider, nil, `{"iv":"aa"}`, "hash", "label",
		true, false, 10, 8, 2, 1, 250, now, nil, nil, priority, nil, nil)
}

func TestAPIKeyRepository_ListEnabled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	rows := sqlmock.NewRows(apiKeyColumnNames)
	keyRow(rows, 1, "groq", 1)
	keyRow(rows, 2, "gemini", 5)

	mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE is_enabled = true AND is_deleted = false ORDER BY priority ASC`).
		WillReturnRows(rows)

	keys, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, int64(1), keys[0].ID)
	assert.Equal(t, "groq", keys[0].Provider)
	assert.Equal(t, `{"iv":"aa"}`, keys[0].KeyEncrypted)
	require.NotNil(t, keys[0].KeyLabel)
	assert.Equal(t, "label", *keys[0].KeyLabel)
	assert.Nil(t, keys[0].ProviderName)
	assert.Nil(t, keys[0].Metadata)
	assert.Equal(t, int64(250), keys[0].AvgLatencyMs)
	assert.Equal(t, 5, keys[1].Priority)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_ListQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE is_deleted = false`).
		WillReturnError(errors.New("connection reset"))

	keys, err := repo.List(context.Background())
	assert.Error(t, err)
	assert.Nil(t, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	rows := sqlmock.NewRows(apiKeyColumnNames)
	keyRow(rows, 7, "deepseek", 3)
	mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE id = \$1 AND is_deleted = false`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	key, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", key.Provider)

	mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE id = \$1`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(apiKeyColumnNames))

	_, err = repo.GetByID(context.Background(), 8)
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	key := models.NewAPIKey("groq", "cipher", "hash").WithLabel("main")
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO api_keys`).
		WithArgs("groq", nil, "cipher", "hash", "main", true, 100, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))

	require.NoError(t, repo.Create(context.Background(), key))
	assert.Equal(t, int64(42), key.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	enabled := false
	priority := 2
	mock.ExpectExec(`UPDATE api_keys SET is_enabled = \$1, priority = \$2, updated_at = NOW\(\) WHERE id = \$3 AND is_deleted = false`).
		WithArgs(false, 2, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), 5, models.APIKeyUpdate{IsEnabled: &enabled, Priority: &priority})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_UpdateErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	err := repo.Update(context.Background(), 5, models.APIKeyUpdate{})
	assert.Error(t, err)

	notes := "rotated"
	mock.ExpectExec(`UPDATE api_keys SET notes = \$1`).
		WithArgs("rotated", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), 9, models.APIKeyUpdate{Notes: &notes})
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_SoftDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE api_keys SET is_deleted = true, is_enabled = false`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_RecordStats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE api_keys SET total_requests = total_requests \+ 1, successful_requests`).
		WithArgs(int64(1), int64(420)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE api_keys SET total_requests = total_requests \+ 1, failed_requests`).
		WithArgs(int64(1), "Rate limit reached", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordSuccess(context.Background(), 1, 420))
	require.NoError(t, repo.RecordError(context.Background(), 1, "Rate limit reached", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
