package exclusion

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Config selects and tunes the backend.
type Config struct {
	RedisURL        string
	JanitorInterval time.Duration
}

// New returns a Redis-backed store when RedisURL is set and reachable, and
// an in-memory store otherwise. It never fails.
func New(ctx context.Context, cfg Config, logger *zap.Logger) Store {
	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory exclusion store")
		return NewMemoryStore(SystemClock(), interval)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, using in-memory exclusion store", zap.Error(err))
		return NewMemoryStore(SystemClock(), interval)
	}

	// no client-side retries
	opts.MaxRetries = -1
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	store := NewRedisStore(client)
	if err := store.Ping(pingCtx); err != nil {
		_ = client.Close()
		logger.Warn("redis unreachable, using in-memory exclusion store", zap.Error(err))
		return NewMemoryStore(SystemClock(), interval)
	}

	logger.Info("exclusion store connected to redis", zap.String("addr", opts.Addr))
	return store
}
