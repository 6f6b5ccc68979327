package keys

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
	"github.com/upb/llm-failover-router/services"
	"github.com/upb/llm-failover-router/services/secrets"
)

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) ListEnabled(ctx context.Context) ([]*models.APIKey, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	args := m.Called(ctx)
	if keys := args.Get(0); keys != nil {
		return keys.([]*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id int64) (*models.APIKey, error) {
	args := m.Called(ctx, id)
	if key := args.Get(0); key != nil {
		return key.(*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockAPIKeyRepository) Update(ctx context.Context, id int64, update models.APIKeyUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockAPIKeyRepository) SoftDelete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAPIKeyRepository) RecordSuccess(ctx context.Context, id int64, latencyMs int64) error {
	return m.Called(ctx, id, latencyMs).Error(0)
}

func (m *MockAPIKeyRepository) RecordError(ctx context.Context, id int64, message string, rateLimited bool) error {
	return m.Called(ctx, id, message, rateLimited).Error(0)
}

type MockAILogRepository struct {
	mock.Mock
}

func (m *MockAILogRepository) Insert(ctx context.Context, log *models.AILog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockAILogRepository) ListRecent(ctx context.Context, limit int) ([]*models.AILog, error) {
	args := m.Called(ctx, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AILog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAILogRepository) ListByKey(ctx context.Context, keyID int64, limit int) ([]*models.AILog, error) {
	args := m.Called(ctx, keyID, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AILog), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestService(t *testing.T) (*Service, *MockAPIKeyRepository, *MockAILogRepository, *secrets.Cipher) {
	t.Helper()
	c, err := secrets.NewCipher(strings.Repeat("0f", 32))
	require.NoError(t, err)

	keyRepo := new(MockAPIKeyRepository)
	logRepo := new(MockAILogRepository)
	svc := NewService(&repositories.Repositories{APIKeys: keyRepo, AILogs: logRepo}, c, zap.NewNop())
	return svc, keyRepo, logRepo, c
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestCreate(t *testing.T) {
	svc, keyRepo, _, c := newTestService(t)

	var stored *models.APIKey
	keyRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.APIKey")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*models.APIKey)
			stored.ID = 17
		}).
		Return(nil)

	created, err := svc.Create(context.Background(), CreateInput{
		Provider: " Groq ",
		APIKey:   "gsk_1234567890abcdef",
		Label:    "primary",
		Priority: intPtr(5),
		Enabled:  boolPtr(false),
	})

	require.NoError(t, err)
	assert.Equal(t, &Created{
		ID:        17,
		Provider:  "groq",
		Label:     "primary",
		Priority:  5,
		Enabled:   false,
		MaskedKey: "gsk_...cdef",
	}, created)

	require.NotNil(t, stored)
	assert.Equal(t, secrets.HashKey("gsk_1234567890abcdef"), stored.KeyHash)
	assert.NotContains(t, stored.KeyEncrypted, "gsk_1234567890abcdef")
	plain, err := c.Decrypt(stored.KeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "gsk_1234567890abcdef", plain)
}

func TestCreate_Defaults(t *testing.T) {
	svc, keyRepo, _, _ := newTestService(t)
	keyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.Create(context.Background(), CreateInput{Provider: "gemini", APIKey: "AIzaSyExample"})

	require.NoError(t, err)
	assert.Equal(t, models.DefaultKeyPriority, created.Priority)
	assert.True(t, created.Enabled)
	assert.Empty(t, created.Label)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateInput
		wantErr error
	}{
		{"unknown provider", CreateInput{Provider: "openai", APIKey: "sk-x"}, services.ErrInvalidProvider},
		{"empty key", CreateInput{Provider: "groq", APIKey: "   "}, services.ErrInvalidInput},
		{"negative priority", CreateInput{Provider: "groq", APIKey: "k", Priority: intPtr(-1)}, services.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, keyRepo, _, _ := newTestService(t)

			_, err := svc.Create(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			keyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	svc, keyRepo, _, _ := newTestService(t)
	keyRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("duplicate key"))

	_, err := svc.Create(context.Background(), CreateInput{Provider: "groq", APIKey: "k"})

	assert.True(t, services.IsInternalError(err))
}

func TestList(t *testing.T) {
	svc, keyRepo, _, _ := newTestService(t)
	keyRepo.On("List", mock.Anything).Return(nil, nil).Once()

	keys, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestUpdate(t *testing.T) {
	t.Run("applies fields", func(t *testing.T) {
		svc, keyRepo, _, _ := newTestService(t)
		upd := models.APIKeyUpdate{IsEnabled: boolPtr(false), Notes: strPtr("paused")}
		keyRepo.On("Update", mock.Anything, int64(3), upd).Return(nil)

		require.NoError(t, svc.Update(context.Background(), 3, upd))
		keyRepo.AssertExpectations(t)
	})

	t.Run("empty update", func(t *testing.T) {
		svc, keyRepo, _, _ := newTestService(t)

		err := svc.Update(context.Background(), 3, models.APIKeyUpdate{})

		assert.ErrorIs(t, err, services.ErrNoUpdateFields)
		keyRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing key", func(t *testing.T) {
		svc, keyRepo, _, _ := newTestService(t)
		upd := models.APIKeyUpdate{Priority: intPtr(1)}
		keyRepo.On("Update", mock.Anything, int64(99), upd).Return(repositories.ErrNotFound)

		err := svc.Update(context.Background(), 99, upd)

		assert.ErrorIs(t, err, services.ErrKeyNotFound)
		assert.Equal(t, int64(99), services.GetErrorDetails(err)["id"])
	})
}

func TestDelete(t *testing.T) {
	svc, keyRepo, _, _ := newTestService(t)
	keyRepo.On("SoftDelete", mock.Anything, int64(4)).Return(nil)
	keyRepo.On("SoftDelete", mock.Anything, int64(5)).Return(repositories.ErrNotFound)
	keyRepo.On("SoftDelete", mock.Anything, int64(6)).Return(errors.New("conn reset"))

	assert.NoError(t, svc.Delete(context.Background(), 4))
	assert.ErrorIs(t, svc.Delete(context.Background(), 5), services.ErrKeyNotFound)
	assert.True(t, services.IsInternalError(svc.Delete(context.Background(), 6)))
}

func TestKeyLogs(t *testing.T) {
	svc, keyRepo, logRepo, _ := newTestService(t)
	keyRepo.On("GetByID", mock.Anything, int64(2)).Return(&models.APIKey{ID: 2}, nil)
	keyRepo.On("GetByID", mock.Anything, int64(3)).Return(nil, repositories.ErrNotFound)
	logRepo.On("ListByKey", mock.Anything, int64(2), DefaultLogLimit).Return(nil, nil)

	logs, err := svc.KeyLogs(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.NotNil(t, logs)

	_, err = svc.KeyLogs(context.Background(), 3, 10)
	assert.ErrorIs(t, err, services.ErrKeyNotFound)
	logRepo.AssertNotCalled(t, "ListByKey", mock.Anything, int64(3), mock.Anything)
}

func TestRecentLogs(t *testing.T) {
	svc, _, logRepo, _ := newTestService(t)
	rows := []*models.AILog{{ID: 1}, {ID: 2}}
	logRepo.On("ListRecent", mock.Anything, MaxLogLimit).Return(rows, nil)

	logs, err := svc.RecentLogs(context.Background(), 10_000)

	require.NoError(t, err)
	assert.Equal(t, rows, logs)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLogLimit, ClampLimit(0))
	assert.Equal(t, DefaultLogLimit, ClampLimit(-3))
	assert.Equal(t, 20, ClampLimit(20))
	assert.Equal(t, MaxLogLimit, ClampLimit(MaxLogLimit+1))
}
