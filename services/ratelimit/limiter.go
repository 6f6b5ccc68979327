// Package ratelimit throttles public endpoints per client with token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config sizes the per-client buckets.
type Config struct {
	RequestsPerMinute int
	Burst             int
	// ClientTTL is how long an idle client's bucket is kept.
	ClientTTL time.Duration
	// SweepInterval is how often idle buckets are removed. Zero disables the sweeper.
	SweepInterval time.Duration
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLimiter creates the limiter and starts its sweeper.
func NewLimiter(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = 10 * time.Minute
	}

	l := &Limiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   cfg.Burst,
		ttl:     cfg.ClientTTL,
		now:     time.Now,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		l.wg.Add(1)
		go l.sweeper(cfg.SweepInterval)
	}
	return l
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) Result {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}
	}

	remaining := int(math.Floor(c.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining}
}

// Sweep drops buckets idle for longer than the client TTL and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop halts the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Limiter) sweeper(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("swept idle rate limit clients", zap.Int("removed", n))
			}
		case <-l.stopCh:
			return
		}
	}
}
