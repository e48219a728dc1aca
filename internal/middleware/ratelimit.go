package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/carechat/server/internal/ephemeral"
	"github.com/carechat/server/internal/logging"
	"go.uber.org/zap"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter is a fixed-window counter kept in the ephemeral store, so every
// replica shares the same budget.
type RateLimiter struct {
	store   ephemeral.Store
	window  time.Duration
	maxReqs int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(store ephemeral.Store, window time.Duration, maxReqs int) *RateLimiter {
	return &RateLimiter{store: store, window: window, maxReqs: maxReqs}
}

// Allow counts one request for scope and key and reports whether it fits the window.
func (rl *RateLimiter) Allow(ctx context.Context, scope, key string) (bool, error) {
	count, err := rl.store.Incr(ctx, rateLimitPrefix+scope+":"+key, rl.window)
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	return count <= int64(rl.maxReqs), nil
}

// RateLimitMiddleware limits requests per client key within scope. A store failure lets
// the request through.
func RateLimitMiddleware(limiter *RateLimiter, scope string, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limiter.window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), scope, keyFunc(r))
			if err != nil {
				logging.FromContext(r.Context()).Warn("rate limit check skipped", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey extracts the client IP from the request for rate limiting. Forwarded headers
// are ignored; the router rewrites RemoteAddr from them only behind a trusted proxy.
func GetIPKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
