// Package ratelimit applies a fixed-window request limit per client.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"costwatch/internal/cache"
	"costwatch/internal/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	Requests   int
	Window     time.Duration
	MaxClients int
}

// DefaultConfig allows six requests per client per minute.
func DefaultConfig() Config {
	return Config{
		Requests:   6,
		Window:     time.Minute,
		MaxClients: 10000,
	}
}

type counter struct {
	n int
}

// Limiter tracks request counts per key. Windows start at a key's first
// request and are dropped by the cache when they expire.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients *cache.LRUCache[string, *counter]
	metrics *metrics.Metrics
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config, m *metrics.Metrics) *Limiter {
	def := DefaultConfig()
	if config.Requests <= 0 {
		config.Requests = def.Requests
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	return &Limiter{
		limit:   config.Requests,
		window:  config.Window,
		clients: cache.NewLRUCache[string, *counter](config.MaxClients, config.Window),
		metrics: m,
	}
}

// Clients exposes the per-client windows so expired ones can be swept.
func (l *Limiter) Clients() *cache.LRUCache[string, *counter] {
	return l.clients
}

// Allow reports whether one more request from key fits in its window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients.Get(key)
	if !ok {
		l.clients.Set(key, &counter{n: 1})
		return true
	}
	if c.n >= l.limit {
		return false
	}
	c.n++
	return true
}

// Middleware creates HTTP middleware for rate limiting
func (l *Limiter) Middleware(extractIP func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(extractIP(r)) {
				l.metrics.RateLimited()
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
