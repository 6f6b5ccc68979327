// Package exclusion tracks credentials that recently hit a provider rate
// limit. An entry is live until its TTL expires; a live entry tells the
// router not to select that credential.
package exclusion

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/llm-failover-router/services/providers"
)

// DefaultTTL is slightly longer than the typical one minute provider window.
const DefaultTTL = 65 * time.Second

// Store is the shared key-availability state.
type Store interface {
	// IsExcluded reports whether a live entry exists for the credential.
	IsExcluded(ctx context.Context, tag providers.Tag, id int64) (bool, error)

	// Exclude writes an entry that expires after ttl.
	Exclude(ctx context.Context, tag providers.Tag, id int64, ttl time.Duration) error

	// Backend names the implementation for readiness reporting.
	Backend() string

	Close() error
}

// Key returns the storage key for a credential.
func Key(tag providers.Tag, id int64) string {
	return fmt.Sprintf("blacklist:%s:%d", tag, id)
}
