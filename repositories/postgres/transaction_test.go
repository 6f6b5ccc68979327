package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/repositories"
)

func TestTransactionManager_InTransactionCommits(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	keys := NewAPIKeyRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE api_keys SET total_requests`).
		WithArgs(int64(1), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return keys.RecordSuccess(ctx, 1, 100)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransactionRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return boom
	})
	assert.Equal(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecutor(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	assert.Equal(t, db.DB, GetExecutor(context.Background(), db))

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, db.DB, GetExecutor(tx.Context(), db))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS api_keys`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, db.InitSchema(context.Background()))

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	assert.Error(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
