package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/services/ratelimit"
	"github.com/upb/llm-failover-router/utils"
)

// Admission decides whether a client may proceed
type Admission interface {
	Allow(key string) ratelimit.Result
}

// RateLimitMiddleware throttles requests per client address.
type RateLimitMiddleware struct {
	limiter Admission
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter Admission, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit answers 429 with Retry-After once a client's bucket is empty.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		res := m.limiter.Allow(key)

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			m.logger.Warn("client rate limited",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client", key),
				zap.Int("retry_after_s", retryAfter))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")
			_ = utils.WriteTooManyRequests(w, "Too many requests. Please slow down.", map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		next.ServeHTTP(w, r)
	})
}

// clientKey is the remote host, which chi's RealIP has already resolved.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
