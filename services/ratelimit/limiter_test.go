package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestLimiter(rpm, burst int) (*Limiter, *time.Time) {
	l := NewLimiter(Config{RequestsPerMinute: rpm, Burst: burst, ClientTTL: time.Minute}, zap.NewNop())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(60, 3)

	for i := 0; i < 3; i++ {
		res := l.Allow("1.2.3.4")
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res := l.Allow("1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
}

func TestLimiter_Refills(t *testing.T) {
	l, now := newTestLimiter(60, 1)

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)

	*now = now.Add(time.Second)
	assert.True(t, l.Allow("a").Allowed)
}

func TestLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	l, now := newTestLimiter(60, 1)

	assert.True(t, l.Allow("a").Allowed)
	for i := 0; i < 5; i++ {
		assert.False(t, l.Allow("a").Allowed)
	}

	*now = now.Add(time.Second)
	assert.True(t, l.Allow("a").Allowed)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(60, 1)

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
	assert.Equal(t, 2, l.Clients())
}

func TestLimiter_Sweep(t *testing.T) {
	l, now := newTestLimiter(60, 1)

	l.Allow("old")
	*now = now.Add(50 * time.Second)
	l.Allow("fresh")
	*now = now.Add(20 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Clients())
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 10, SweepInterval: time.Millisecond}, zap.NewNop())
	defer l.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Allow(fmt.Sprintf("client-%d", i%2)).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, allowed, 22)
	assert.GreaterOrEqual(t, allowed, 20)
}
