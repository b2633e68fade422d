package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// SimpleLimiter is an in-memory per-key rate limiter. The engine runs as a
// single process with no distributed coordination, so a process-local
// limiter is all the client-facing API needs.
type SimpleLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewSimpleLimiter creates a new simple rate limiter
func NewSimpleLimiter(r rate.Limit, b int) *SimpleLimiter {
	return &SimpleLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns a limiter for a key
func (l *SimpleLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter
}

// CleanupRoutine periodically drops every per-key limiter, so each key
// starts again with a full burst
func (l *SimpleLimiter) CleanupRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.limiters = make(map[string]*rate.Limiter)
			l.mu.Unlock()
		}
	}
}

// SimpleRateLimit creates a rate limiting middleware keyed by client IP,
// guarding the mutation-producing endpoints from a single noisy client.
func SimpleRateLimit(requestsPerSecond float64, burst int) echo.MiddlewareFunc {
	limiter := NewSimpleLimiter(rate.Limit(requestsPerSecond), burst)

	ctx := context.Background()
	go limiter.CleanupRoutine(ctx, 10*time.Minute)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/health" || c.Path() == "/metrics" {
				return next(c)
			}

			key := c.RealIP()

			l := limiter.GetLimiter(key)
			if !l.Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limit_exceeded",
					"message": fmt.Sprintf("too many requests from %s", key),
				})
			}

			return next(c)
		}
	}
}
