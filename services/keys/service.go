// Package keys administers the stored provider credentials.
package keys

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
	"github.com/upb/llm-failover-router/services"
	"github.com/upb/llm-failover-router/services/providers"
	"github.com/upb/llm-failover-router/services/secrets"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// Encrypter seals plaintext keys for storage
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// CreateInput is a new credential as submitted by an admin.
type CreateInput struct {
	Provider string
	APIKey   string
	Label    string
	Priority *int
	Enabled  *bool
	Notes    string
}

// Created describes a stored credential without its secret.
type Created struct {
	ID        int64  `json:"id"`
	Provider  string `json:"provider"`
	Label     string `json:"label,omitempty"`
	Priority  int    `json:"priority"`
	Enabled   bool   `json:"enabled"`
	MaskedKey string `json:"maskedKey"`
}

// Service wraps the key and log repositories
type Service struct {
	keys      repositories.APIKeyRepository
	logs      repositories.AILogRepository
	encrypter Encrypter
	logger    *zap.Logger
}

// NewService creates a key administration service
func NewService(repos *repositories.Repositories, encrypter Encrypter, logger *zap.Logger) *Service {
	return &Service{
		keys:      repos.APIKeys,
		logs:      repos.AILogs,
		encrypter: encrypter,
		logger:    logger,
	}
}

// Create validates, encrypts and stores a credential.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	tag, err := providers.ParseTag(in.Provider)
	if err != nil {
		return nil, services.ErrInvalidProvider
	}
	apiKey := strings.TrimSpace(in.APIKey)
	if apiKey == "" {
		return nil, services.ErrInvalidInput.WithDetail("apiKey", "apiKey is required")
	}
	if in.Priority != nil && *in.Priority < 0 {
		return nil, services.ErrInvalidInput.WithDetail("priority", "priority must be >= 0")
	}

	encrypted, err := s.encrypter.Encrypt(apiKey)
	if err != nil {
		return nil, services.WrapInternal("failed to encrypt key", err)
	}

	key := models.NewAPIKey(tag.String(), encrypted, secrets.HashKey(apiKey)).
		WithLabel(strings.TrimSpace(in.Label))
	if in.Priority != nil {
		key.Priority = *in.Priority
	}
	if in.Enabled != nil {
		key.IsEnabled = *in.Enabled
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		key.Notes = &notes
	}

	if err := s.keys.Create(ctx, key); err != nil {
		return nil, services.WrapInternal("failed to store key", err)
	}

	masked := secrets.MaskKey(apiKey)
	s.logger.Info("api key created",
		zap.Int64("key_id", key.ID),
		zap.String("provider", key.Provider),
		zap.String("key", masked),
		zap.Int("priority", key.Priority))

	created := &Created{
		ID:        key.ID,
		Provider:  key.Provider,
		Priority:  key.Priority,
		Enabled:   key.IsEnabled,
		MaskedKey: masked,
	}
	if key.KeyLabel != nil {
		created.Label = *key.KeyLabel
	}
	return created, nil
}

// List returns every non-deleted key by priority.
func (s *Service) List(ctx context.Context) ([]*models.APIKey, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list keys", err)
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	return keys, nil
}

// Update changes the mutable fields of a key.
func (s *Service) Update(ctx context.Context, id int64, update models.APIKeyUpdate) error {
	if update.IsEmpty() {
		return services.ErrNoUpdateFields
	}
	if update.Priority != nil && *update.Priority < 0 {
		return services.ErrInvalidInput.WithDetail("priority", "priority must be >= 0")
	}

	if err := s.keys.Update(ctx, id, update); err != nil {
		return s.mapErr(id, "failed to update key", err)
	}
	s.logger.Info("api key updated", zap.Int64("key_id", id))
	return nil
}

// Delete soft-deletes a key, which also disables it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.keys.SoftDelete(ctx, id); err != nil {
		return s.mapErr(id, "failed to delete key", err)
	}
	s.logger.Info("api key deleted", zap.Int64("key_id", id))
	return nil
}

// KeyLogs returns the newest log rows for one key.
func (s *Service) KeyLogs(ctx context.Context, id int64, limit int) ([]*models.AILog, error) {
	if _, err := s.keys.GetByID(ctx, id); err != nil {
		return nil, s.mapErr(id, "failed to load key", err)
	}
	logs, err := s.logs.ListByKey(ctx, id, ClampLimit(limit))
	if err != nil {
		return nil, services.WrapInternal("failed to list logs", err)
	}
	return nonNil(logs), nil
}

// RecentLogs returns the newest log rows across keys.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]*models.AILog, error) {
	logs, err := s.logs.ListRecent(ctx, ClampLimit(limit))
	if err != nil {
		return nil, services.WrapInternal("failed to list logs", err)
	}
	return nonNil(logs), nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLogLimit
	case limit > MaxLogLimit:
		return MaxLogLimit
	default:
		return limit
	}
}

func (s *Service) mapErr(id int64, msg string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrKeyNotFound.WithDetail("id", id)
	}
	return services.WrapInternal(msg, err)
}

func nonNil(logs []*models.AILog) []*models.AILog {
	if logs == nil {
		return []*models.AILog{}
	}
	return logs
}
