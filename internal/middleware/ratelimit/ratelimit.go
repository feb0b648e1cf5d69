// Package ratelimit throttles mutating requests per client IP.
package ratelimit

import (
	"net/http"
	"sync/atomic"
	"time"

	"cashback/internal/cache"
)

// Limiter allows RequestsPerMinute requests per client in a fixed one-minute window.
type Limiter struct {
	windows           *cache.LRUCache[window]
	requestsPerMinute int
	now               func() time.Time
	rejected          atomic.Int64
}

type window struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// MaxClients bounds memory; the least recently seen client is forgotten first.
	MaxClients int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MaxClients:        10000,
	}
}

// NewLimiter creates a new rate limiter. Register it with a cache.Manager so
// idle clients are dropped.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	return &Limiter{
		windows:           cache.NewLRUCache[window](config.MaxClients, time.Minute),
		requestsPerMinute: config.RequestsPerMinute,
		now:               time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (rl *Limiter) WithClock(now func() time.Time) *Limiter {
	rl.now = now
	rl.windows.WithClock(now)
	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *Limiter) Allow(clientIP string) bool {
	now := rl.now()
	w := rl.windows.Update(clientIP, func(cur window, ok bool) window {
		if !ok || now.Sub(cur.start) >= time.Minute {
			return window{start: now, requests: 1}
		}
		cur.requests++
		return cur
	})
	if w.requests > rl.requestsPerMinute {
		rl.rejected.Add(1)
		return false
	}
	return true
}

// CleanExpired drops clients idle for a full window. It satisfies cache.Cleaner.
func (rl *Limiter) CleanExpired() int {
	return rl.windows.CleanExpired()
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	Rejected    int64
	ClientCount int64
}

// GetMetrics returns current rate limiting metrics
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		Rejected:    rl.rejected.Load(),
		ClientCount: int64(rl.windows.Size()),
	}
}

// Middleware limits POST, PUT, PATCH and DELETE. Reads pass through untouched.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", "60")
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
