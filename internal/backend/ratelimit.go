package backend

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing model requests per key (usually the model id).
// A nil *RateLimiter never waits.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit // requests per second
	burst    int        // max burst size
}

// NewRateLimiter creates a new rate limiter.
// Returns nil when requestsPerSecond is not positive, meaning unlimited.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// getLimiter returns the rate limiter for a given key
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rate, r.burst)
	r.limiters[key] = limiter
	return limiter
}

// Wait blocks until a request for key may proceed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	if r == nil {
		return nil
	}
	return r.getLimiter(key).Wait(ctx)
}

// Allow reports whether a request for key may proceed now
func (r *RateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}
	return r.getLimiter(key).Allow()
}
