package exclusion

import (
	"context"
	"sync"
	"time"

	"github.com/upb/llm-failover-router/services/providers"
)

// DefaultJanitorInterval is how often expired entries are swept.
const DefaultJanitorInterval = 60 * time.Second

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// MemoryStore is a process-local Store. Entries expire lazily on read and
// are swept by a background janitor.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // key -> expiry
	clock   Clock

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryStore creates the store and starts its janitor. A non-positive
// interval disables the janitor.
func NewMemoryStore(clock Clock, janitorInterval time.Duration) *MemoryStore {
	if clock == nil {
		clock = SystemClock()
	}
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
	if janitorInterval > 0 {
		s.wg.Add(1)
		go s.janitor(janitorInterval)
	}
	return s
}

// IsExcluded reports whether a live entry exists. Expired entries are removed.
func (s *MemoryStore) IsExcluded(_ context.Context, tag providers.Tag, id int64) (bool, error) {
	key := Key(tag, id)

	s.mu.RLock()
	expiry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if s.clock.Now().Before(expiry) {
		return true, nil
	}

	s.mu.Lock()
	// re-check: a concurrent Exclude may have refreshed it
	if exp, still := s.entries[key]; still && !s.clock.Now().Before(exp) {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return false, nil
}

// Exclude writes or refreshes an entry.
func (s *MemoryStore) Exclude(_ context.Context, tag providers.Tag, id int64, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[Key(tag, id)] = s.clock.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

// Backend returns "memory".
func (s *MemoryStore) Backend() string { return "memory" }

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (s *MemoryStore) CleanupExpired() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}
