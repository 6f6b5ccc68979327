// Package catalog materializes the routable credential set from storage.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/repositories"
	"github.com/upb/llm-failover-router/services/providers"
)

// Credential is one decrypted, routable API key.
type Credential struct {
	ID       int64         `json:"id"`
	Provider providers.Tag `json:"provider"`
	Secret   string        `json:"-"`
	Label    string        `json:"label,omitempty"`
	Priority int           `json:"priority"`
}

// String never includes the secret.
func (c Credential) String() string {
	return fmt.Sprintf("%s#%d", c.Provider, c.ID)
}

// Group holds every credential of one provider. A Group is never empty.
type Group struct {
	Provider    providers.Tag `json:"provider"`
	Credentials []Credential  `json:"credentials"`
	AvgPriority float64       `json:"avg_priority"`
}

// Decrypter opens stored ciphertexts.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Loader reads the catalog fresh on every call.
type Loader struct {
	keys      repositories.APIKeyRepository
	decrypter Decrypter
	logger    *zap.Logger
}

// NewLoader creates a catalog loader
func NewLoader(keys repositories.APIKeyRepository, decrypter Decrypter, logger *zap.Logger) *Loader {
	return &Loader{
		keys:      keys,
		decrypter: decrypter,
		logger:    logger,
	}
}

// Load returns the provider groups in ascending average priority. Storage
// failures yield an empty result; a credential that cannot be decrypted or
// names an unknown provider is skipped on its own.
func (l *Loader) Load(ctx context.Context) []Group {
	rows, err := l.keys.ListEnabled(ctx)
	if err != nil {
		l.logger.Error("failed to load api keys", zap.Error(err))
		return []Group{}
	}

	order := make([]providers.Tag, 0, len(providers.AllTags()))
	byTag := make(map[providers.Tag][]Credential)

	for _, row := range rows {
		tag, err := providers.ParseTag(row.Provider)
		if err != nil {
			l.logger.Warn("skipping api key with unknown provider",
				zap.Int64("key_id", row.ID),
				zap.String("provider", row.Provider))
			continue
		}

		secret, err := l.decrypter.Decrypt(row.KeyEncrypted)
		if err != nil {
			l.logger.Error("failed to decrypt api key",
				zap.Int64("key_id", row.ID),
				zap.String("provider", row.Provider),
				zap.Error(err))
			continue
		}

		cred := Credential{
			ID:       row.ID,
			Provider: tag,
			Secret:   secret,
			Priority: row.Priority,
		}
		if row.KeyLabel != nil {
			cred.Label = *row.KeyLabel
		}

		if _, seen := byTag[tag]; !seen {
			order = append(order, tag)
		}
		byTag[tag] = append(byTag[tag], cred)
	}

	groups := make([]Group, 0, len(order))
	for _, tag := range order {
		creds := byTag[tag]
		sum := 0
		for _, c := range creds {
			sum += c.Priority
		}
		groups = append(groups, Group{
			Provider:    tag,
			Credentials: creds,
			AvgPriority: float64(sum) / float64(len(creds)),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].AvgPriority < groups[j].AvgPriority
	})

	return groups
}
