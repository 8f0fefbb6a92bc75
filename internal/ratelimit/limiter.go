// Package ratelimit provides an in-memory sliding-window rate limiter for
// the admin surface. The proxy path is never rate limited here, and the
// reserved ip_rate_limits table is untouched.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Limiter tracks request timestamps per key within a sliding window.
type Limiter struct {
	max    int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// New creates a limiter allowing max requests per window per key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{max: max, window: window, hits: make(map[string][]time.Time)}
}

// Allow reports whether a request for key fits inside the window, recording
// it if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	times := l.hits[key]
	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= l.max {
		l.hits[key] = pruned
		return false
	}
	l.hits[key] = append(pruned, time.Now())
	return true
}

// Middleware rejects over-limit requests with 429, keyed by client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if real := r.Header.Get("X-Real-IP"); real != "" {
			ip = real
		}
		if !l.Allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail":"Rate limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
