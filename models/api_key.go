package models

import (
	"encoding/json"
	"time"
)

// APIKey is one stored provider credential together with its usage counters.
// The encrypted secret and its hash never leave the server.
type APIKey struct {
	ID        int64     `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Provider     string  `json:"provider" db:"provider"`
	ProviderName *string `json:"provider_name,omitempty" db:"provider_name"`
	KeyEncrypted string  `json:"-" db:"key_encrypted"`
	KeyHash      string  `json:"-" db:"key_hash"`
	KeyLabel     *string `json:"key_label,omitempty" db:"key_label"`

	IsEnabled bool `json:"is_enabled" db:"is_enabled"`
	IsDeleted bool `json:"is_deleted" db:"is_deleted"`

	// Usage statistics
	TotalRequests      int64      `json:"total_requests" db:"total_requests"`
	SuccessfulRequests int64      `json:"successful_requests" db:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests" db:"failed_requests"`
	RateLimitHits      int64      `json:"rate_limit_hits" db:"rate_limit_hits"`
	AvgLatencyMs       int64      `json:"avg_latency_ms" db:"avg_latency_ms"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	LastError          *string    `json:"last_error,omitempty" db:"last_error"`
	LastErrorAt        *time.Time `json:"last_error_at,omitempty" db:"last_error_at"`

	Priority int             `json:"priority" db:"priority"`
	Notes    *string         `json:"notes,omitempty" db:"notes"`
	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// DefaultKeyPriority is used when a key is created without a priority.
const DefaultKeyPriority = 100

// TableName returns the table name for the APIKey model
func (APIKey) TableName() string {
	return "api_keys"
}

// NewAPIKey creates an enabled key with the default priority.
func NewAPIKey(provider, encrypted, hash string) *APIKey {
	now := time.Now()
	return &APIKey{
		CreatedAt:    now,
		UpdatedAt:    now,
		Provider:     provider,
		KeyEncrypted: encrypted,
		KeyHash:      hash,
		IsEnabled:    true,
		Priority:     DefaultKeyPriority,
	}
}

// WithLabel sets the display label
func (k *APIKey) WithLabel(label string) *APIKey {
	if label != "" {
		k.KeyLabel = &label
	}
	return k
}

// SuccessRate returns successful/total, or 0 when the key was never used.
func (k *APIKey) SuccessRate() float64 {
	if k.TotalRequests == 0 {
		return 0
	}
	return float64(k.SuccessfulRequests) / float64(k.TotalRequests)
}

// APIKeyUpdate carries the mutable columns of a key. Nil fields are left untouched.
type APIKeyUpdate struct {
	IsEnabled *bool   `json:"is_enabled,omitempty"`
	KeyLabel  *string `json:"key_label,omitempty"`
	Priority  *int    `json:"priority,omitempty" validate:"omitempty,gte=0"`
	Notes     *string `json:"notes,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u APIKeyUpdate) IsEmpty() bool {
	return u.IsEnabled == nil && u.KeyLabel == nil && u.Priority == nil && u.Notes == nil
}
